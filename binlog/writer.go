package binlog

import (
	"encoding/binary"
	"io"
	"os"
	"sync"
)

const Magic = 0xA1B2C3D4

// Record flags identify the payload carried by a capture record.
const (
	FlagRanging  = 0x01
	FlagWifi     = 0x02
	FlagMotion   = 0x04
	FlagEstimate = 0x08
)

const (
	globalHdrLen = 24
	recordHdrLen = 16
	extraHdrLen  = 8 // flag(2) + reserved(2) + seq(4)
)

// Writer appends capture records to a session log. The container keeps the
// classic pcap framing (global header, per-record second/microsecond
// timestamps) with an 8-byte extra header in front of each payload, so the
// files stay greppable with standard tooling.
type Writer struct {
	mu  sync.Mutex
	w   io.Writer
	buf []byte
	seq uint32
}

func NewWriter(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := &Writer{w: f, buf: make([]byte, 32)}
	if err := w.writeGlobalHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

func (w *Writer) writeGlobalHeader() error {
	b := make([]byte, globalHdrLen)
	binary.LittleEndian.PutUint32(b[0:], Magic)
	binary.LittleEndian.PutUint16(b[4:], 2) // version major
	binary.LittleEndian.PutUint16(b[6:], 4) // version minor
	binary.LittleEndian.PutUint32(b[16:], 65535)
	binary.LittleEndian.PutUint32(b[20:], 1)
	_, err := w.w.Write(b)
	return err
}

// WriteRecord appends one payload stamped with atMs. Safe for concurrent use.
func (w *Writer) WriteRecord(flag uint16, atMs int64, payload []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	tsSec := uint32(atMs / 1000)
	tsUsec := uint32(atMs%1000) * 1000
	total := uint32(extraHdrLen + len(payload))

	binary.LittleEndian.PutUint32(w.buf[0:], tsSec)
	binary.LittleEndian.PutUint32(w.buf[4:], tsUsec)
	binary.LittleEndian.PutUint32(w.buf[8:], total)
	binary.LittleEndian.PutUint32(w.buf[12:], total)
	if _, err := w.w.Write(w.buf[:recordHdrLen]); err != nil {
		return err
	}

	w.seq++
	binary.LittleEndian.PutUint16(w.buf[0:], flag)
	binary.LittleEndian.PutUint16(w.buf[2:], 0)
	binary.LittleEndian.PutUint32(w.buf[4:], w.seq)
	if _, err := w.w.Write(w.buf[:extraHdrLen]); err != nil {
		return err
	}

	_, err := w.w.Write(payload)
	return err
}

func (w *Writer) Close() error {
	if c, ok := w.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
