package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/aarthig0611/face-recognition-app/internal/capture"
	"github.com/aarthig0611/face-recognition-app/internal/constants"
	"github.com/aarthig0611/face-recognition-app/internal/database"
	"github.com/aarthig0611/face-recognition-app/internal/dedup"
	"github.com/aarthig0611/face-recognition-app/internal/detector"
	"github.com/aarthig0611/face-recognition-app/internal/emotion"
	"github.com/aarthig0611/face-recognition-app/internal/gallery"
	"github.com/aarthig0611/face-recognition-app/internal/registration"
)

var (
	// ErrSessionActive is returned by Start while another session is capturing.
	ErrSessionActive = errors.New("a capture session is already active")
	// ErrSessionNotFound is returned for unknown or expired session IDs.
	ErrSessionNotFound = errors.New("session not found")
)

// ManagerOptions configure a Manager. Zero values take the defaults.
type ManagerOptions struct {
	Session   Options
	ReportTTL time.Duration
}

// Manager owns the gallery matcher and the registration pipeline, runs at
// most one capture session at a time and fans its events out to sinks.
type Manager struct {
	store    database.GalleryWriter
	matcher  *gallery.Matcher
	pipeline *registration.Pipeline
	detector detector.Detector
	opts     ManagerOptions
	reports  *cache.Cache

	// reloadMu orders LoadAll+Rebuild so an older read never replaces a
	// newer snapshot.
	reloadMu sync.Mutex

	mu     sync.Mutex
	active *Orchestrator

	sinkMu sync.RWMutex
	sinks  []Sink
}

// NewManager wires a manager. The gallery starts empty; call LoadGallery.
func NewManager(store database.GalleryWriter, matcher *gallery.Matcher, det detector.Detector, opts ManagerOptions) *Manager {
	if opts.ReportTTL <= 0 {
		opts.ReportTTL = constants.DefaultReportTTL
	}
	if opts.Session.Clock == nil {
		opts.Session.Clock = time.Now
	}

	m := &Manager{
		store:    store,
		matcher:  matcher,
		detector: det,
		opts:     opts,
		reports:  cache.New(opts.ReportTTL, opts.ReportTTL*2),
	}
	m.pipeline = registration.NewPipeline(store, matcher.Dim(),
		registration.WithLabelResolver(func(name string) (string, bool) {
			return m.matcher.Snapshot().ResolveLabel(name)
		}),
		registration.WithClock(opts.Session.Clock),
	)
	return m
}

func (m *Manager) Matcher() *gallery.Matcher { return m.matcher }

// AddSink registers a receiver for every event of every session.
func (m *Manager) AddSink(s Sink) {
	m.sinkMu.Lock()
	defer m.sinkMu.Unlock()
	m.sinks = append(m.sinks, s)
}

func (m *Manager) publish(e Event) {
	m.sinkMu.RLock()
	defer m.sinkMu.RUnlock()
	for _, s := range m.sinks {
		s.Publish(e)
	}
}

// LoadGallery reads every identity from the store and rebuilds the matcher.
// On failure the current gallery stays in place.
func (m *Manager) LoadGallery(ctx context.Context) (*gallery.Gallery, error) {
	m.reloadMu.Lock()
	defer m.reloadMu.Unlock()

	identities, err := m.store.LoadAll(ctx)
	if err != nil {
		return nil, database.Wrap("load gallery", err)
	}
	if err := m.matcher.Rebuild(identities); err != nil {
		return nil, fmt.Errorf("rebuild gallery: %w", err)
	}
	return m.matcher.Snapshot(), nil
}

// EnsureGallery loads the gallery when it is empty and returns it.
func (m *Manager) EnsureGallery(ctx context.Context) (*gallery.Gallery, error) {
	if g := m.matcher.Snapshot(); g.Len() > 0 {
		return g, nil
	}
	return m.LoadGallery(ctx)
}

// Start creates and starts a session on source. Only one session may capture
// at a time.
func (m *Manager) Start(ctx context.Context, source capture.Source) (*Orchestrator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil && m.active.State() == StateCapturing {
		return nil, ErrSessionActive
	}

	o := NewOrchestrator(source, m.detector, m.matcher, m.opts.Session)
	if err := o.Start(ctx); err != nil {
		return nil, err
	}
	m.active = o
	go m.forward(o)
	return o, nil
}

// forward pumps o's events to the sinks until the session ends, then files
// its report.
func (m *Manager) forward(o *Orchestrator) {
	for e := range o.Events() {
		m.publish(e)
	}
	m.finish(o, o.Report())
}

func (m *Manager) finish(o *Orchestrator, report *Report) {
	m.reports.Set(o.ID(), report, cache.DefaultExpiration)

	m.mu.Lock()
	if m.active == o {
		m.active = nil
	}
	m.mu.Unlock()
}

// Active returns the capturing session, or nil.
func (m *Manager) Active() *Orchestrator {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Session returns the active session when its ID is id.
func (m *Manager) Session(id string) (*Orchestrator, bool) {
	o := m.Active()
	if o == nil || o.ID() != id {
		return nil, false
	}
	return o, true
}

// Stop ends the session id and returns its report.
func (m *Manager) Stop(id string) (*Report, error) {
	o, ok := m.Session(id)
	if !ok {
		if r, ok := m.cachedReport(id); ok {
			return r, nil
		}
		return nil, ErrSessionNotFound
	}
	report := o.Stop()
	m.finish(o, report)
	return report, nil
}

// Report returns the live report of the active session or the cached report
// of a finished one.
func (m *Manager) Report(id string) (*Report, error) {
	if o, ok := m.Session(id); ok {
		return o.Report(), nil
	}
	if r, ok := m.cachedReport(id); ok {
		return r, nil
	}
	return nil, ErrSessionNotFound
}

func (m *Manager) cachedReport(id string) (*Report, bool) {
	v, ok := m.reports.Get(id)
	if !ok {
		return nil, false
	}
	return v.(*Report), true
}

// Shutdown stops the active session, if any.
func (m *Manager) Shutdown() {
	if o := m.Active(); o != nil {
		m.finish(o, o.Stop())
	}
}

// Register persists a new reference embedding, reloads the gallery, clears
// the active session's dedup window and announces the registration. When the
// embedding was stored but the reload failed, both the result and the error
// are returned.
func (m *Manager) Register(ctx context.Context, req registration.Request) (*registration.Result, error) {
	res, err := m.pipeline.Register(ctx, req)
	if err != nil {
		return nil, err
	}

	if _, err := m.LoadGallery(ctx); err != nil {
		log.Errorf("session: %q registered but gallery reload failed: %v", res.Label, err)
		return res, err
	}

	e := Event{Type: EventRegistrationSucceeded, At: res.CreatedAt, Registration: res}
	if o := m.Active(); o != nil {
		o.ClearDedup()
		e.SessionID = o.ID()
	}
	m.publish(e)
	return res, nil
}

// Analysis is the outcome of a single-photo analysis.
type Analysis struct {
	Faces      []Annotation     `json:"faces"`
	Unresolved []UnresolvedFace `json:"unresolved"`
}

// Analyze detects and resolves every face in one photo. Identical unknown
// descriptors within the photo are reported once.
func (m *Manager) Analyze(ctx context.Context, image []byte) (*Analysis, error) {
	detections, err := m.detector.Detect(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}

	seen := dedup.New(dedup.Options{Strategy: dedup.StrategyFingerprint})
	now := m.opts.Session.Clock()

	out := &Analysis{Faces: []Annotation{}, Unresolved: []UnresolvedFace{}}
	for _, d := range detections {
		match, err := m.matcher.FindBestMatch(d.Embedding)
		if err != nil {
			return nil, err
		}
		out.Faces = append(out.Faces, Annotation{
			Box:      d.Box,
			Label:    match.Label,
			Distance: match.Distance,
			Age:      d.Age,
			Gender:   d.Gender,
			Emotion:  emotion.TopEmotion(d.Expressions),
		})
		if !match.Known() && seen.ShouldSurface(d.Embedding, now) {
			out.Unresolved = append(out.Unresolved, *unresolvedFace(image, d))
		}
	}
	return out, nil
}
