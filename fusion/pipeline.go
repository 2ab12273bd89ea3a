package fusion

import (
	"context"
	"log"
	"sync"
	"time"
)

// Pipeline is the estimation loop. Readings arrive through the Submit
// methods into latest-value slots (one per emitter); a periodic tick drains
// them, runs the estimators, updates the filter and publishes the fused
// estimate. All estimator state is owned by the tick, so no estimator ever
// sees concurrent updates.
type Pipeline struct {
	cfg      *Config
	building *Building
	filter   *Filter
	ble      *Trilaterator
	wifi     *WifiEstimator
	matcher  *Matcher
	dr       *DeadReckoner
	sup      *Supervisor

	mu       sync.Mutex
	bleSlot  map[EmitterID]SignalReading
	wifiSlot map[EmitterID]SignalReading
	lastTick int64
	last     *Estimate

	subMu sync.Mutex
	subs  map[chan Estimate]struct{}
}

// NewPipeline assembles the estimators around a building survey. landmarks
// and notify may be nil.
func NewPipeline(cfg *Config, b *Building, landmarks LandmarkSource, notify func(Event)) *Pipeline {
	p := &Pipeline{
		cfg:      cfg,
		building: b,
		filter:   NewFilter(cfg.ProcessNoise),
		ble: NewTrilaterator(
			NewPathLossModel(cfg.Ble.RefRSSI, cfg.Ble.Exponent, cfg.Ble.MaxRange),
			SourceBLE, cfg.Ble.Accuracy),
		wifi: NewWifiEstimator(
			NewPathLossModel(cfg.Wifi.RefRSSI, cfg.Wifi.Exponent, cfg.Wifi.MaxRange),
			cfg.Wifi.Accuracy),
		dr: NewDeadReckoner(cfg.Steps.Length, cfg.Steps.Threshold,
			cfg.Steps.MinIntervalMs, cfg.Steps.Accuracy, cfg.Steps.DriftPerStep),
		bleSlot:  map[EmitterID]SignalReading{},
		wifiSlot: map[EmitterID]SignalReading{},
		subs:     map[chan Estimate]struct{}{},
	}
	if len(b.FingerprintFloors()) > 0 {
		p.matcher = NewMatcher(b, cfg.Fingerprint.K,
			cfg.Fingerprint.BleWeight, cfg.Fingerprint.WifiWeight, cfg.Fingerprint.Accuracy)
	}
	p.sup = NewSupervisor(cfg.Recovery, landmarks, p.tryAcquire, p.applyRecovered, p.anchorReckoner, notify)
	return p
}

// SubmitRanging feeds BLE observations. Per emitter, the freshest reading
// wins; submission never blocks.
func (p *Pipeline) SubmitRanging(rs []SignalReading) {
	p.mu.Lock()
	for _, r := range rs {
		if prev, ok := p.bleSlot[r.Source]; !ok || r.At >= prev.At {
			p.bleSlot[r.Source] = r
		}
	}
	p.mu.Unlock()
}

// SubmitWifi feeds a Wi-Fi scan.
func (p *Pipeline) SubmitWifi(rs []SignalReading) {
	p.mu.Lock()
	for _, r := range rs {
		if prev, ok := p.wifiSlot[r.Source]; !ok || r.At >= prev.At {
			p.wifiSlot[r.Source] = r
		}
	}
	p.mu.Unlock()
}

// SubmitMotion feeds one inertial sample straight into step detection.
func (p *Pipeline) SubmitMotion(s MotionSample) {
	p.dr.Ingest(s)
}

// InjectPosition applies a user-supplied position: the filter is re-seeded,
// dead reckoning re-anchored and the engine forced active.
func (p *Pipeline) InjectPosition(pos Position) {
	p.mu.Lock()
	p.filter.ResetTo(pos, InjectedAccuracy)
	p.dr.Reset(pos)
	est := Estimate{Pos: pos, Accuracy: InjectedAccuracy, At: time.Now()}
	p.last = &est
	p.mu.Unlock()
	p.publish(est)
	p.sup.ForceActive(est)
	log.Printf("pipeline: manual position injected (%.2f, %.2f) floor %d", pos.X, pos.Y, pos.Floor)
}

// Subscribe returns a latest-value estimate stream. A consumer that falls
// behind loses intermediate estimates, never blocks the tick.
func (p *Pipeline) Subscribe() chan Estimate {
	ch := make(chan Estimate, 1)
	p.subMu.Lock()
	p.subs[ch] = struct{}{}
	p.subMu.Unlock()
	return ch
}

func (p *Pipeline) Unsubscribe(ch chan Estimate) {
	p.subMu.Lock()
	delete(p.subs, ch)
	p.subMu.Unlock()
}

// Last returns the most recent published estimate.
func (p *Pipeline) Last() (Estimate, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return Estimate{}, false
	}
	return *p.last, true
}

// State reports the tracking state machine.
func (p *Pipeline) State() State {
	return p.sup.State()
}

// ManualRequired reports whether recovery is waiting on the user.
func (p *Pipeline) ManualRequired() bool {
	return p.sup.ManualRequired()
}

// Run drives the tick until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) {
	p.sup.Start()
	ticker := time.NewTicker(p.cfg.Tick())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.sup.Stop()
			return
		case t := <-ticker.C:
			p.Step(t.UnixMilli())
		}
	}
}

// Step runs one estimation cycle at the given clock. Exported so the replay
// tool can drive the pipeline off recorded time instead of a ticker.
func (p *Pipeline) Step(nowMs int64) (Estimate, bool) {
	p.mu.Lock()

	if p.lastTick != 0 {
		dt := nowMs - p.lastTick
		if dt < 0 || dt > StaleResetMs {
			log.Printf("pipeline: clock jumped %dms, resetting filter", dt)
			p.filter.Reset()
			p.last = nil
		}
	}
	p.lastTick = nowMs

	bleReads, bleSig := drainSlot(p.bleSlot, nowMs, p.cfg.ReadingAgeMs)
	wifiReads, wifiSig := drainSlot(p.wifiSlot, nowMs, p.cfg.ReadingAgeMs)

	ms := make([]Measurement, 0, 4)
	if len(bleReads) > 0 {
		obs := p.ble.Ranges(bleReads, p.building.Emitters(ChannelBLE))
		if m, _, ok := p.ble.Estimate(obs, nowMs); ok {
			ms = append(ms, m)
		}
	}
	if len(wifiReads) > 0 {
		if m, ok := p.wifi.Estimate(wifiReads, p.building.Emitters(ChannelWifi), nowMs); ok {
			ms = append(ms, m)
		}
	}
	if p.matcher != nil && (len(bleSig) > 0 || len(wifiSig) > 0) {
		var m Measurement
		var ok bool
		if p.last != nil {
			m, ok = p.matcher.Match(bleSig, wifiSig, p.last.Pos.Floor, nowMs)
		} else {
			m, ok = p.matcher.MatchAnywhere(bleSig, wifiSig, nowMs)
		}
		if ok {
			ms = append(ms, m)
		}
	}
	if m, ok := p.dr.Estimate(nowMs); ok {
		ms = append(ms, m)
	}

	absolute := false
	for _, m := range ms {
		if m.Source != SourceDeadReckoning {
			absolute = true
			break
		}
	}

	est, ok := p.filter.Update(ms, nowMs)
	if px, py := p.filter.Covariance(); px > CovarianceResetLimit || py > CovarianceResetLimit {
		log.Printf("pipeline: covariance blew up (%.1f, %.1f), resetting filter", px, py)
		p.filter.Reset()
		p.last = nil
		ok = false
	}
	if ok {
		p.last = &est
		if absolute && est.Accuracy <= p.cfg.AnchorAccuracy {
			p.dr.Reset(est.Pos)
		}
	}
	p.mu.Unlock()

	if ok {
		p.publish(est)
	}
	if absolute && ok {
		p.sup.NoteFix(est)
	} else {
		p.sup.NoteFailedCycle()
	}
	return est, ok
}

// tryAcquire is a recovery attempt: estimate from whatever readings are
// fresh, preferring the fingerprint matcher since it needs no floor prior.
func (p *Pipeline) tryAcquire(ctx context.Context) (Measurement, float64, bool) {
	nowMs := time.Now().UnixMilli()
	p.mu.Lock()
	bleReads, bleSig := drainSlot(p.bleSlot, nowMs, p.cfg.ReadingAgeMs)
	wifiReads, wifiSig := drainSlot(p.wifiSlot, nowMs, p.cfg.ReadingAgeMs)
	p.mu.Unlock()
	if ctx.Err() != nil {
		return Measurement{}, 0, false
	}

	best := Measurement{}
	found := false
	if p.matcher != nil && (len(bleSig) > 0 || len(wifiSig) > 0) {
		if m, ok := p.matcher.MatchAnywhere(bleSig, wifiSig, nowMs); ok {
			best, found = m, true
		}
	}
	if len(bleReads) > 0 {
		obs := p.ble.Ranges(bleReads, p.building.Emitters(ChannelBLE))
		if m, _, ok := p.ble.Estimate(obs, nowMs); ok && (!found || m.Accuracy < best.Accuracy) {
			best, found = m, true
		}
	}
	if len(wifiReads) > 0 {
		if m, ok := p.wifi.Estimate(wifiReads, p.building.Emitters(ChannelWifi), nowMs); ok && (!found || m.Accuracy < best.Accuracy) {
			best, found = m, true
		}
	}
	if !found {
		return Measurement{}, 0, false
	}
	conf := clamp(1.0-best.Accuracy/RecoveryAccuracyScale, 0, 1)
	return best, conf, true
}

func (p *Pipeline) applyRecovered(m Measurement) {
	p.mu.Lock()
	p.filter.ResetTo(m.Pos, m.Accuracy)
	p.dr.Reset(m.Pos)
	est := Estimate{Pos: m.Pos, Accuracy: m.Accuracy, At: time.UnixMilli(m.At)}
	p.last = &est
	p.mu.Unlock()
	p.publish(est)
	p.sup.NoteFix(est)
}

func (p *Pipeline) anchorReckoner(pos Position) {
	p.dr.Reset(pos)
}

func (p *Pipeline) publish(est Estimate) {
	p.subMu.Lock()
	for ch := range p.subs {
		select {
		case ch <- est:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- est:
			default:
			}
		}
	}
	p.subMu.Unlock()
}

// drainSlot returns the readings still inside the freshness window and
// prunes everything older. The signal map is keyed for fingerprinting.
func drainSlot(slot map[EmitterID]SignalReading, nowMs, maxAgeMs int64) ([]SignalReading, map[EmitterID]float64) {
	reads := make([]SignalReading, 0, len(slot))
	sig := make(map[EmitterID]float64, len(slot))
	for id, r := range slot {
		if nowMs-r.At > maxAgeMs {
			delete(slot, id)
			continue
		}
		reads = append(reads, r)
		sig[id] = r.RSSI
	}
	return reads, sig
}
