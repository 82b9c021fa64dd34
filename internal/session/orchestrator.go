// Package session drives capture sessions: a periodic tick samples a frame,
// resolves every detected face against the gallery, accumulates emotions of
// recognized people and surfaces unknown faces for registration.
package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/aarthig0611/face-recognition-app/internal/capture"
	"github.com/aarthig0611/face-recognition-app/internal/constants"
	"github.com/aarthig0611/face-recognition-app/internal/dedup"
	"github.com/aarthig0611/face-recognition-app/internal/detector"
	"github.com/aarthig0611/face-recognition-app/internal/emotion"
	"github.com/aarthig0611/face-recognition-app/internal/embedding"
	"github.com/aarthig0611/face-recognition-app/internal/gallery"
	"github.com/aarthig0611/face-recognition-app/internal/logger"
)

var log = logger.Log

var (
	// ErrAlreadyStarted is returned by Start on a session that is capturing.
	ErrAlreadyStarted = errors.New("session already capturing")
	// ErrSessionEnded is returned by Start on a session that has been stopped.
	ErrSessionEnded = errors.New("session has ended")
	// ErrTickInFlight is returned by Tick when the previous tick is still running.
	ErrTickInFlight = errors.New("previous tick still in flight")
	// ErrNotCapturing is returned by Tick outside of a running session.
	ErrNotCapturing = errors.New("session is not capturing")
)

// State is the lifecycle state of an orchestrator.
type State string

// State constants.
const (
	StateIdle      State = "idle"
	StateCapturing State = "capturing"
)

// Options configure an Orchestrator. Zero values take the defaults.
type Options struct {
	Interval    time.Duration
	EventBuffer int
	Dedup       dedup.Options
	Clock       func() time.Time
}

// Status is a point-in-time view of a session.
type Status struct {
	ID        string     `json:"id"`
	Source    string     `json:"source"`
	State     State      `json:"state"`
	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
	Pending   int        `json:"pendingUnresolved"`
	Counters  Counters   `json:"counters"`
}

// Orchestrator runs one capture session. It owns its dedup window and emotion
// ledger; the gallery matcher is shared. An orchestrator is single-use: once
// stopped it cannot be started again and its Events channel is closed.
type Orchestrator struct {
	id       string
	source   capture.Source
	detector detector.Detector
	matcher  *gallery.Matcher
	window   *dedup.Window
	ledger   *emotion.Aggregator
	interval time.Duration
	now      func() time.Time
	events   chan Event

	lifecycle sync.Mutex // serializes Start and Stop

	mu        sync.RWMutex
	state     State
	stopping  bool
	ended     bool
	startedAt time.Time
	endedAt   time.Time
	report    *Report
	cancel    context.CancelFunc
	tickCtx   context.Context

	loop     sync.WaitGroup
	ticks    sync.WaitGroup
	inFlight atomic.Bool
	failing  atomic.Bool

	nTicks      atomic.Int64
	nSkipped    atomic.Int64
	nFrames     atomic.Int64
	nFrameErrs  atomic.Int64
	nDetections atomic.Int64
	nUnresolved atomic.Int64
}

// NewOrchestrator creates an idle session reading from source.
func NewOrchestrator(source capture.Source, det detector.Detector, matcher *gallery.Matcher, opts Options) *Orchestrator {
	if opts.Interval <= 0 {
		opts.Interval = constants.DefaultSampleInterval
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = constants.EventChannelBuffer
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Orchestrator{
		id:       uuid.NewString(),
		source:   source,
		detector: det,
		matcher:  matcher,
		window:   dedup.New(opts.Dedup),
		ledger:   emotion.NewAggregator(),
		interval: opts.Interval,
		now:      opts.Clock,
		events:   make(chan Event, opts.EventBuffer),
		state:    StateIdle,
	}
}

func (o *Orchestrator) ID() string { return o.id }

// Events returns the event stream. It is closed after the final
// session.report event.
func (o *Orchestrator) Events() <-chan Event {
	return o.events
}

func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// Source returns the frame source, for callers that feed a push source.
func (o *Orchestrator) Source() capture.Source {
	return o.source
}

// Start opens the source, clears the ledger and dedup window and begins
// ticking. The session keeps running after ctx is done; use Stop.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.lifecycle.Lock()
	defer o.lifecycle.Unlock()

	o.mu.RLock()
	state, ended := o.state, o.ended
	o.mu.RUnlock()
	if ended {
		return ErrSessionEnded
	}
	if state == StateCapturing {
		return ErrAlreadyStarted
	}

	if err := o.source.Open(ctx); err != nil {
		var devErr *capture.DeviceError
		if !errors.As(err, &devErr) {
			err = &capture.DeviceError{Source: o.source.Name(), Err: err}
		}
		log.Warnf("session %s: cannot open %s source: %v", o.id, o.source.Name(), err)
		return err
	}

	o.ledger.Reset()
	o.window.Clear()

	tickCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	started := o.now()

	o.mu.Lock()
	o.state = StateCapturing
	o.startedAt = started
	o.cancel = cancel
	o.tickCtx = tickCtx
	o.mu.Unlock()

	o.emit(Event{Type: EventSessionStarted, At: started})
	log.Infof("session %s: capturing from %s every %s", o.id, o.source.Name(), o.interval)

	o.loop.Add(1)
	go o.run(tickCtx)
	return nil
}

func (o *Orchestrator) run(ctx context.Context) {
	defer o.loop.Done()

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.trigger(ctx)
		}
	}
}

// trigger launches a tick without blocking the ticker. A tick that would
// overlap the previous one is skipped, not queued.
func (o *Orchestrator) trigger(ctx context.Context) {
	if !o.inFlight.CompareAndSwap(false, true) {
		o.nSkipped.Add(1)
		log.Debugf("session %s: tick skipped, previous still in flight", o.id)
		return
	}
	o.ticks.Add(1)
	go func() {
		defer o.ticks.Done()
		defer o.inFlight.Store(false)
		_ = o.tick(ctx)
	}()
}

// Tick runs one sampling tick synchronously, subject to the same in-flight
// guard as the periodic ticks.
func (o *Orchestrator) Tick() error {
	o.mu.RLock()
	ctx := o.tickCtx
	if o.state != StateCapturing || o.stopping || ctx.Err() != nil {
		o.mu.RUnlock()
		return ErrNotCapturing
	}
	if !o.inFlight.CompareAndSwap(false, true) {
		o.mu.RUnlock()
		o.nSkipped.Add(1)
		return ErrTickInFlight
	}
	// registered under the lock so that Stop's Wait cannot miss it
	o.ticks.Add(1)
	o.mu.RUnlock()

	defer o.ticks.Done()
	defer o.inFlight.Store(false)
	return o.tick(ctx)
}

// tick samples one frame. Detection errors skip the frame; a device error
// ends the session.
func (o *Orchestrator) tick(ctx context.Context) error {
	o.nTicks.Add(1)

	frame, err := o.source.Next(ctx)
	if err != nil {
		if errors.Is(err, capture.ErrNoFrame) || ctx.Err() != nil {
			return nil
		}
		var devErr *capture.DeviceError
		if errors.As(err, &devErr) {
			o.fail(err)
			return err
		}
		o.nFrameErrs.Add(1)
		log.Warnf("session %s: frame skipped: %v", o.id, err)
		return err
	}
	o.nFrames.Add(1)

	detections, err := o.detector.Detect(ctx, frame.Data)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		o.nFrameErrs.Add(1)
		log.Warnf("session %s: detection failed, frame skipped: %v", o.id, err)
		return err
	}

	now := o.now()
	for _, d := range detections {
		if ctx.Err() != nil {
			return nil
		}
		o.process(frame.Data, d, now)
	}
	return nil
}

func (o *Orchestrator) process(frame []byte, d detector.Detection, now time.Time) {
	o.nDetections.Add(1)

	match, err := o.matcher.FindBestMatch(d.Embedding)
	if err != nil {
		log.Warnf("session %s: detection ignored: %v", o.id, err)
		return
	}

	top := emotion.TopEmotion(d.Expressions)
	if match.Known() {
		if top != "" {
			o.ledger.RecordSample(match.Label, top, now)
		}
	} else if o.window.ShouldSurface(d.Embedding, now) {
		o.nUnresolved.Add(1)
		o.emit(Event{Type: EventFaceUnresolved, At: now, Unresolved: unresolvedFace(frame, d)})
	}

	o.emit(Event{
		Type: EventAnnotationReady,
		At:   now,
		Annotation: &Annotation{
			Box:      d.Box,
			Label:    match.Label,
			Distance: match.Distance,
			Age:      d.Age,
			Gender:   d.Gender,
			Emotion:  top,
		},
	})
}

// unresolvedFace copies the embedding and attaches a crop of the face when
// the frame can be decoded.
func unresolvedFace(frame []byte, d detector.Detection) *UnresolvedFace {
	face := &UnresolvedFace{
		Embedding:   d.Embedding.Clone(),
		Fingerprint: embedding.Fingerprint(d.Embedding),
		Box:         d.Box,
	}
	crop, err := detector.Crop(frame, d.Box)
	if err != nil {
		log.Debugf("session: no crop for unresolved face: %v", err)
		return face
	}
	face.Crop = detector.DataURL(crop)
	return face
}

// fail ends the session after a device error. It runs Stop on its own
// goroutine because Stop waits for the failing tick to return.
func (o *Orchestrator) fail(cause error) {
	if !o.failing.CompareAndSwap(false, true) {
		return
	}
	log.Errorf("session %s: capture device failed: %v", o.id, cause)
	o.mu.RLock()
	cancel := o.cancel
	o.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
	go o.stop(cause)
}

// Stop halts the tick loop, waits for an in-flight tick, closes the source,
// clears the dedup window, freezes the ledger and returns the final report.
// No tick runs after Stop returns. Stopping a stopped session returns its
// report again.
func (o *Orchestrator) Stop() *Report {
	return o.stop(nil)
}

func (o *Orchestrator) stop(cause error) *Report {
	o.lifecycle.Lock()
	defer o.lifecycle.Unlock()

	o.mu.Lock()
	state, report, cancel := o.state, o.report, o.cancel
	if state == StateCapturing {
		o.stopping = true
	}
	o.mu.Unlock()
	if state != StateCapturing {
		return report
	}

	cancel()
	o.loop.Wait()
	o.ticks.Wait()

	if err := o.source.Close(); err != nil {
		log.Warnf("session %s: closing %s source: %v", o.id, o.source.Name(), err)
	}
	o.window.Clear()
	o.ledger.Freeze()

	ended := o.now()
	report = o.buildReport(ReasonStopped, ended)
	if cause != nil {
		report.Reason = ReasonDeviceFailure
		report.Error = cause.Error()
	}

	o.mu.Lock()
	o.state = StateIdle
	o.stopping = false
	o.ended = true
	o.endedAt = ended
	o.report = report
	o.mu.Unlock()

	if cause != nil {
		o.emitFinal(Event{Type: EventSessionFailed, At: ended, Error: cause.Error()})
	}
	o.emitFinal(Event{Type: EventSessionReport, At: ended, Report: report})
	close(o.events)

	log.Infof("session %s: stopped (%s) after %d ticks, %d skipped, %d people",
		o.id, report.Reason, report.Counters.Ticks, report.Counters.SkippedTicks, len(report.People))
	return report
}

// Report returns the final report of a stopped session, or a live report
// built from the ledger while capturing.
func (o *Orchestrator) Report() *Report {
	o.mu.RLock()
	report := o.report
	o.mu.RUnlock()
	if report != nil {
		return report
	}
	return o.buildReport(ReasonLive, time.Time{})
}

func (o *Orchestrator) buildReport(reason string, ended time.Time) *Report {
	o.mu.RLock()
	started := o.startedAt
	o.mu.RUnlock()

	r := &Report{
		SessionID: o.id,
		Source:    o.source.Name(),
		StartedAt: started,
		Reason:    reason,
		Counters:  o.counters(),
		People:    buildPeople(o.ledger),
	}
	if !ended.IsZero() {
		r.EndedAt = &ended
	}
	return r
}

func (o *Orchestrator) counters() Counters {
	return Counters{
		Ticks:        o.nTicks.Load(),
		SkippedTicks: o.nSkipped.Load(),
		Frames:       o.nFrames.Load(),
		FrameErrors:  o.nFrameErrs.Load(),
		Detections:   o.nDetections.Load(),
		Unresolved:   o.nUnresolved.Load(),
	}
}

// Status returns the session state and counters.
func (o *Orchestrator) Status() Status {
	o.mu.RLock()
	defer o.mu.RUnlock()

	s := Status{
		ID:        o.id,
		Source:    o.source.Name(),
		State:     o.state,
		StartedAt: o.startedAt,
		Pending:   o.window.Len(),
		Counters:  o.counters(),
	}
	if o.ended {
		ended := o.endedAt
		s.EndedAt = &ended
	}
	return s
}

// ClearDedup forgets every unresolved face, so a face that was just
// registered is not prompted again under its old identity.
func (o *Orchestrator) ClearDedup() {
	o.window.Clear()
}

// emit delivers an event without blocking; a full buffer drops it.
func (o *Orchestrator) emit(e Event) {
	e.SessionID = o.id
	select {
	case o.events <- e:
	default:
		log.Warnf("session %s: event buffer full, dropped %s", o.id, e.Type)
	}
}

// emitFinal waits up to TerminalEventTimeout for room in a full channel.
func (o *Orchestrator) emitFinal(e Event) {
	e.SessionID = o.id
	select {
	case o.events <- e:
		return
	default:
	}

	timer := time.NewTimer(constants.TerminalEventTimeout)
	defer timer.Stop()
	select {
	case o.events <- e:
	case <-timer.C:
		log.Warnf("session %s: no consumer for %s after %s, dropped", o.id, e.Type, constants.TerminalEventTimeout)
	}
}
