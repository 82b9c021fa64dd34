// Package dedup suppresses repeated registration prompts for the same
// unresolved face during a live capture session.
package dedup

import (
	"fmt"
	"sync"
	"time"

	"github.com/aarthig0611/face-recognition-app/internal/constants"
	"github.com/aarthig0611/face-recognition-app/internal/embedding"
	"github.com/aarthig0611/face-recognition-app/internal/logger"
)

var log = logger.Log

// Strategy decides when two unresolved descriptors are the same face.
type Strategy string

const (
	// StrategyNearest treats a descriptor as already seen when a held entry lies
	// closer than Options.Distance.
	StrategyNearest Strategy = "nearest"
	// StrategyFingerprint requires exact embedding.Fingerprint equality.
	StrategyFingerprint Strategy = "fingerprint"
)

// ParseStrategy maps a configuration value to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", StrategyNearest:
		return StrategyNearest, nil
	case StrategyFingerprint:
		return StrategyFingerprint, nil
	default:
		return "", fmt.Errorf("unknown dedup strategy %q (want %q or %q)", s, StrategyNearest, StrategyFingerprint)
	}
}

type Options struct {
	Strategy   Strategy
	TTL        time.Duration // entries not surfaced for longer than this are dropped
	Reprompt   time.Duration // minimum gap between two prompts for the same face
	Distance   float64       // nearest strategy radius (exclusive)
	MaxEntries int           // oldest entry is dropped beyond this
}

// DefaultOptions returns the nearest strategy with the standard timings.
func DefaultOptions() Options {
	return Options{
		Strategy:   StrategyNearest,
		TTL:        constants.DefaultDedupTTL,
		Reprompt:   constants.DefaultRepromptInterval,
		Distance:   constants.DefaultDedupDistance,
		MaxEntries: constants.DefaultDedupMaxEntries,
	}
}

type entry struct {
	fingerprint string
	embedding   embedding.Embedding
	lastSeenAt  time.Time
}

// Window is the short-term memory of unresolved faces. It is safe for
// concurrent use; time is always supplied by the caller.
type Window struct {
	mu      sync.Mutex
	opts    Options
	entries []*entry
}

// New returns an empty window. Zero-valued options take their defaults.
func New(opts Options) *Window {
	def := DefaultOptions()
	if opts.Strategy == "" {
		opts.Strategy = def.Strategy
	}
	if opts.TTL <= 0 {
		opts.TTL = def.TTL
	}
	if opts.Reprompt <= 0 {
		opts.Reprompt = def.Reprompt
	}
	if opts.Distance <= 0 {
		opts.Distance = def.Distance
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = def.MaxEntries
	}
	return &Window{opts: opts}
}

func (w *Window) Options() Options {
	return w.opts
}

// ShouldSurface reports whether e should be offered as a new unresolved face.
// Expired entries are evicted first. A face not held, or last surfaced at
// least Reprompt ago, is recorded with lastSeenAt = now and surfaced;
// otherwise it is suppressed and its entry is left untouched.
func (w *Window) ShouldSurface(e embedding.Embedding, now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.evictExpired(now)

	fp := embedding.Fingerprint(e)
	existing := w.find(e, fp)
	if existing != nil && now.Sub(existing.lastSeenAt) < w.opts.Reprompt {
		return false
	}

	if existing != nil {
		existing.fingerprint = fp
		existing.embedding = e.Clone()
		existing.lastSeenAt = now
		return true
	}

	if len(w.entries) >= w.opts.MaxEntries {
		w.evictOldest()
	}
	w.entries = append(w.entries, &entry{fingerprint: fp, embedding: e.Clone(), lastSeenAt: now})
	return true
}

// Clear drops every entry.
func (w *Window) Clear() {
	w.mu.Lock()
	n := len(w.entries)
	w.entries = nil
	w.mu.Unlock()

	if n > 0 {
		log.Debugf("dedup: cleared %d entries", n)
	}
}

// Len returns the number of held entries, including ones that have expired
// but not yet been evicted.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}

func (w *Window) evictExpired(now time.Time) {
	kept := w.entries[:0]
	for _, en := range w.entries {
		if now.Sub(en.lastSeenAt) > w.opts.TTL {
			continue
		}
		kept = append(kept, en)
	}
	for i := len(kept); i < len(w.entries); i++ {
		w.entries[i] = nil
	}
	w.entries = kept
}

func (w *Window) evictOldest() {
	oldest := 0
	for i, en := range w.entries {
		if en.lastSeenAt.Before(w.entries[oldest].lastSeenAt) {
			oldest = i
		}
	}
	w.entries = append(w.entries[:oldest], w.entries[oldest+1:]...)
}

func (w *Window) find(e embedding.Embedding, fp string) *entry {
	if w.opts.Strategy == StrategyFingerprint {
		for _, en := range w.entries {
			if en.fingerprint == fp {
				return en
			}
		}
		return nil
	}

	var nearest *entry
	best := w.opts.Distance
	for _, en := range w.entries {
		d, err := embedding.Distance(en.embedding, e)
		if err != nil {
			continue
		}
		if d < best {
			best = d
			nearest = en
		}
	}
	return nearest
}
