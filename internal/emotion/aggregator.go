// Package emotion accumulates how long each recognized person spent in each
// emotion during a capture session.
package emotion

import (
	"sort"
	"sync"
	"time"
)

// Canonical emotion categories reported by the detection model.
const (
	Neutral   = "neutral"
	Happy     = "happy"
	Sad       = "sad"
	Angry     = "angry"
	Fearful   = "fearful"
	Disgusted = "disgusted"
	Surprised = "surprised"
)

// Categories lists the canonical emotions in tie-break order.
var Categories = []string{Neutral, Happy, Sad, Angry, Fearful, Disgusted, Surprised}

var categoryRank = func() map[string]int {
	m := make(map[string]int, len(Categories))
	for i, c := range Categories {
		m[c] = i
	}
	return m
}()

// before orders emotions: canonical categories first in their fixed order,
// then anything else alphabetically.
func before(a, b string) bool {
	ra, okA := categoryRank[a]
	rb, okB := categoryRank[b]
	switch {
	case okA && okB:
		return ra < rb
	case okA:
		return true
	case okB:
		return false
	default:
		return a < b
	}
}

// TopEmotion returns the highest-scoring emotion. Equal scores go to the
// emotion that comes first in Categories order. Returns "" for no scores.
func TopEmotion(scores map[string]float64) string {
	top := ""
	var topScore float64
	for name, score := range scores {
		if top == "" || score > topScore || (score == topScore && before(name, top)) {
			top, topScore = name, score
		}
	}
	return top
}

// Stat is one line of a per-person report.
type Stat struct {
	Emotion    string  `json:"emotion"`
	DurationMs int64   `json:"durationMs"`
	Percent    float64 `json:"percent"`
	Rank       int     `json:"rank"`
}

// Aggregator is the emotion ledger of one session. It is safe for concurrent use.
type Aggregator struct {
	mu         sync.Mutex
	durations  map[string]map[string]time.Duration
	lastSample map[string]time.Time
	frozen     bool
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		durations:  make(map[string]map[string]time.Duration),
		lastSample: make(map[string]time.Time),
	}
}

// RecordSample charges the time since label's previous sample to topEmotion.
// A label's first sample contributes zero; a clock that moved backwards
// contributes zero as well. Samples are ignored once the ledger is frozen.
func (a *Aggregator) RecordSample(label, topEmotion string, now time.Time) {
	if label == "" || topEmotion == "" {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.frozen {
		return
	}

	last, ok := a.lastSample[label]
	if !ok {
		last = now
	}
	elapsed := now.Sub(last)
	if elapsed < 0 {
		elapsed = 0
	}

	byEmotion, ok := a.durations[label]
	if !ok {
		byEmotion = make(map[string]time.Duration)
		a.durations[label] = byEmotion
	}
	byEmotion[topEmotion] += elapsed
	a.lastSample[label] = now
}

// Duration returns the time accumulated for label in emotion.
func (a *Aggregator) Duration(label, emotion string) time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.durations[label][emotion]
}

// Report ranks label's emotions by accumulated time, longest first, ties by
// name. Percentages are of the label's total and are all 0 when the total is
// 0. Labels without samples yield an empty report.
func (a *Aggregator) Report(label string) []Stat {
	a.mu.Lock()
	defer a.mu.Unlock()
	return report(a.durations[label])
}

func report(byEmotion map[string]time.Duration) []Stat {
	if len(byEmotion) == 0 {
		return []Stat{}
	}

	var total time.Duration
	stats := make([]Stat, 0, len(byEmotion))
	for name, d := range byEmotion {
		total += d
		stats = append(stats, Stat{Emotion: name, DurationMs: d.Milliseconds()})
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].DurationMs != stats[j].DurationMs {
			return stats[i].DurationMs > stats[j].DurationMs
		}
		return stats[i].Emotion < stats[j].Emotion
	})

	totalMs := total.Milliseconds()
	for i := range stats {
		stats[i].Rank = i + 1
		if totalMs > 0 {
			stats[i].Percent = float64(stats[i].DurationMs) * 100 / float64(totalMs)
		}
	}
	return stats
}

// Labels returns every label with at least one sample, sorted.
func (a *Aggregator) Labels() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	labels := make([]string, 0, len(a.durations))
	for label := range a.durations {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// Snapshot returns the report of every label.
func (a *Aggregator) Snapshot() map[string][]Stat {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make(map[string][]Stat, len(a.durations))
	for label, byEmotion := range a.durations {
		out[label] = report(byEmotion)
	}
	return out
}

// Freeze makes the ledger read-only until the next Reset.
func (a *Aggregator) Freeze() {
	a.mu.Lock()
	a.frozen = true
	a.mu.Unlock()
}

// Reset empties the ledger and makes it writable again.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.durations = make(map[string]map[string]time.Duration)
	a.lastSample = make(map[string]time.Time)
	a.frozen = false
}
