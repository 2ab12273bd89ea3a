package fusion

// WifiEstimator derives position candidates from Wi-Fi scans with the same
// range machinery as BLE, under its own calibration. Indoor Wi-Fi ranging is
// noisier than BLE, so its nominal accuracy is configured worse and the
// filter trusts it less.
type WifiEstimator struct {
	tri *Trilaterator
}

func NewWifiEstimator(model *PathLossModel, accuracy float64) *WifiEstimator {
	return &WifiEstimator{tri: NewTrilaterator(model, SourceWifi, accuracy)}
}

// Estimate converts a scan into a position candidate against the AP survey.
// ok is false when no scanned BSSID maps to a surveyed access point.
func (w *WifiEstimator) Estimate(readings []SignalReading, aps map[EmitterID]Emitter, at int64) (Measurement, bool) {
	scan := readings[:0:0]
	for _, rd := range readings {
		if rd.Channel == ChannelWifi {
			scan = append(scan, rd)
		}
	}
	obs := w.tri.Ranges(scan, aps)
	m, _, ok := w.tri.Estimate(obs, at)
	return m, ok
}
