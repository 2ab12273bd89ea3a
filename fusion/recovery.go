package fusion

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the tracking lifecycle of the estimation core.
type State int

const (
	StateInactive State = iota
	StateInitializing
	StateActive
	StateRecovering
)

func (s State) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateInitializing:
		return "initializing"
	case StateActive:
		return "active"
	case StateRecovering:
		return "recovering"
	}
	return "unknown"
}

// Event is a tracking lifecycle notification for consumers (websocket hub,
// feed forwarder).
type Event struct {
	Kind           string     `json:"kind"`
	State          string     `json:"state"`
	AttemptID      string     `json:"attempt_id,omitempty"`
	Attempt        int        `json:"attempt,omitempty"`
	DelaySeconds   float64    `json:"delay_seconds,omitempty"`
	LastKnown      *Estimate  `json:"last_known,omitempty"`
	Landmarks      []Landmark `json:"landmarks,omitempty"`
	ManualRequired bool       `json:"manual_required,omitempty"`
}

const (
	EventState          = "state_changed"
	EventPositionLost   = "position_lost"
	EventRetryScheduled = "retry_scheduled"
	EventRecovered      = "recovered"
	EventManualRequired = "manual_required"
)

// AcquireFunc is one re-acquisition attempt: inspect whatever readings are
// currently available and return a candidate with a confidence in [0,1].
type AcquireFunc func(ctx context.Context) (Measurement, float64, bool)

// Supervisor drives the tracking state machine. Cycle outcomes arrive from
// the pipeline; re-acquisition runs as a cancellable background loop with
// exponential backoff while the state is recovering.
type Supervisor struct {
	cfg       RecoveryConfig
	landmarks LandmarkSource
	acquire   AcquireFunc
	apply     func(Measurement)
	degrade   func(Position)
	notify    func(Event)

	mu       sync.Mutex
	state    State
	manual   bool
	failures int
	lastFix  *Estimate
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewSupervisor wires the state machine to its collaborators. landmarks and
// notify may be nil; acquire, apply and degrade must not be.
func NewSupervisor(cfg RecoveryConfig, landmarks LandmarkSource, acquire AcquireFunc, apply func(Measurement), degrade func(Position), notify func(Event)) *Supervisor {
	return &Supervisor{
		cfg:       cfg,
		landmarks: landmarks,
		acquire:   acquire,
		apply:     apply,
		degrade:   degrade,
		notify:    notify,
	}
}

func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ManualRequired reports whether re-acquisition has been exhausted and the
// engine is waiting for a user-provided position.
func (s *Supervisor) ManualRequired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.manual
}

// LastKnown returns the last trusted estimate, if any.
func (s *Supervisor) LastKnown() (Estimate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastFix == nil {
		return Estimate{}, false
	}
	return *s.lastFix, true
}

// Start moves inactive → initializing.
func (s *Supervisor) Start() {
	s.mu.Lock()
	if s.state != StateInactive {
		s.mu.Unlock()
		return
	}
	s.state = StateInitializing
	ev := s.stateEvent()
	s.mu.Unlock()
	s.emit(ev)
}

// Stop cancels any in-flight re-acquisition and returns to inactive.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.state = StateInactive
	s.manual = false
	s.failures = 0
	ev := s.stateEvent()
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.emit(ev)
}

// NoteFix records a cycle that produced an absolute (non-reckoned) fix.
// The first one completes initialization.
func (s *Supervisor) NoteFix(est Estimate) {
	s.mu.Lock()
	s.failures = 0
	s.lastFix = &est
	var ev *Event
	if s.state == StateInitializing {
		s.state = StateActive
		e := s.stateEvent()
		ev = &e
	}
	s.mu.Unlock()
	if ev != nil {
		s.emit(*ev)
	}
}

// NoteFailedCycle records a cycle without an absolute fix. Enough of them in
// a row while active starts recovery.
func (s *Supervisor) NoteFailedCycle() {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return
	}
	s.failures++
	if s.failures < s.cfg.FailureThreshold {
		s.mu.Unlock()
		return
	}
	s.failures = 0
	s.state = StateRecovering
	s.manual = false
	last := s.lastFix
	var marks []Landmark
	if last != nil && s.landmarks != nil {
		marks = s.landmarks.NearbyLandmarks(last.Pos, s.cfg.Landmarks)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go s.retryLoop(ctx)
	ev := Event{Kind: EventPositionLost, State: s.state.String(), LastKnown: last, Landmarks: marks}
	s.mu.Unlock()

	if last != nil {
		s.degrade(last.Pos)
	}
	log.Printf("recovery: position lost, last known %+v", last)
	s.emit(ev)
}

// ForceActive applies a user-supplied estimate and moves to active from any
// state, cancelling recovery attempts.
func (s *Supervisor) ForceActive(est Estimate) {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.state = StateActive
	s.manual = false
	s.failures = 0
	s.lastFix = &est
	ev := s.stateEvent()
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.emit(ev)
}

func (s *Supervisor) retryLoop(ctx context.Context) {
	defer s.wg.Done()
	id := "rec_" + uuid.NewString()
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		delay := s.cfg.Backoff(attempt - 1)
		s.emit(Event{
			Kind:         EventRetryScheduled,
			State:        StateRecovering.String(),
			AttemptID:    id,
			Attempt:      attempt,
			DelaySeconds: delay.Seconds(),
		})
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}

		m, conf, ok := s.acquire(ctx)
		if ctx.Err() != nil {
			return
		}
		if ok && conf >= s.cfg.MinConfidence {
			s.mu.Lock()
			if s.state != StateRecovering {
				s.mu.Unlock()
				return
			}
			s.state = StateActive
			s.cancel = nil
			s.mu.Unlock()
			s.apply(m)
			log.Printf("recovery: re-acquired after attempt %d (confidence %.2f)", attempt, conf)
			s.emit(Event{Kind: EventRecovered, State: StateActive.String(), AttemptID: id, Attempt: attempt})
			return
		}
		log.Printf("recovery: attempt %d failed (ok=%v confidence %.2f)", attempt, ok, conf)
	}

	s.mu.Lock()
	if s.state != StateRecovering {
		s.mu.Unlock()
		return
	}
	s.manual = true
	s.cancel = nil
	last := s.lastFix
	s.mu.Unlock()
	log.Printf("recovery: attempts exhausted, manual position required")
	s.emit(Event{
		Kind:           EventManualRequired,
		State:          StateRecovering.String(),
		AttemptID:      id,
		LastKnown:      last,
		ManualRequired: true,
	})
}

func (s *Supervisor) stateEvent() Event {
	return Event{Kind: EventState, State: s.state.String(), ManualRequired: s.manual}
}

func (s *Supervisor) emit(ev Event) {
	if s.notify != nil {
		s.notify(ev)
	}
}
