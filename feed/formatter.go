package feed

import (
	"fmt"
	"time"
)

// Records are single CRLF-terminated lines. The header is "navfeed:   ,"
// with the three spaces at bytes 8..10 backfilled with the decimal record
// length, so receivers can frame records on a raw stream.
const recordHeader = "navfeed:   ,"

func stamp(ts int64) string {
	return time.UnixMilli(ts).Format("20060102150405.000")
}

func fillLength(b []byte) []byte {
	n := len(b)
	if n >= 100 {
		b[8] = byte('0' + n/100)
	}
	b[9] = byte('0' + (n/10)%10)
	b[10] = byte('0' + n%10)
	return b
}

// FormatPosition renders a fused position fix.
func FormatPosition(ts int64, floor int, x, y, accuracy float64, state string) []byte {
	body := fmt.Sprintf("%sPOS,%s,%d,%.2f,%.2f,%.2f,%s\r\n",
		recordHeader, stamp(ts), floor, x, y, accuracy, state)
	return fillLength([]byte(body))
}

// FormatRoute renders an active-route update.
func FormatRoute(ts int64, routeID, destID string, distance, etaSeconds float64) []byte {
	body := fmt.Sprintf("%sROUTE,%s,%s,%s,%.2f,%.1f\r\n",
		recordHeader, stamp(ts), routeID, destID, distance, etaSeconds)
	return fillLength([]byte(body))
}

// FormatRecovery renders a tracking-state transition.
func FormatRecovery(ts int64, state string, attempt int) []byte {
	body := fmt.Sprintf("%sRECOV,%s,%s,%d\r\n",
		recordHeader, stamp(ts), state, attempt)
	return fillLength([]byte(body))
}

// FormatArrival renders a destination-reached record.
func FormatArrival(ts int64, routeID, destID string) []byte {
	body := fmt.Sprintf("%sARRIVE,%s,%s,%s\r\n",
		recordHeader, stamp(ts), routeID, destID)
	return fillLength([]byte(body))
}
