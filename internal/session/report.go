package session

import (
	"sort"
	"time"

	"github.com/aarthig0611/face-recognition-app/internal/emotion"
)

// End reasons recorded in a Report.
const (
	ReasonLive          = "live"
	ReasonStopped       = "stopped"
	ReasonDeviceFailure = "device_failure"
)

// PersonReport is the emotion breakdown of one recognized person.
type PersonReport struct {
	Label    string         `json:"label"`
	TotalMs  int64          `json:"totalMs"`
	Emotions []emotion.Stat `json:"emotions"`
}

// Counters are the tick statistics of a session.
type Counters struct {
	Ticks        int64 `json:"ticks"`
	SkippedTicks int64 `json:"skippedTicks"`
	Frames       int64 `json:"frames"`
	FrameErrors  int64 `json:"frameErrors"`
	Detections   int64 `json:"detections"`
	Unresolved   int64 `json:"unresolved"`
}

// Report summarizes a session. A live report is built from the ledger while
// capturing; the final one after the ledger is frozen.
type Report struct {
	SessionID string         `json:"sessionId"`
	Source    string         `json:"source"`
	StartedAt time.Time      `json:"startedAt"`
	EndedAt   *time.Time     `json:"endedAt,omitempty"`
	Reason    string         `json:"reason"`
	Error     string         `json:"error,omitempty"`
	Counters  Counters       `json:"counters"`
	People    []PersonReport `json:"people"`
}

// buildPeople turns a ledger snapshot into per-person reports ordered by label.
func buildPeople(ledger *emotion.Aggregator) []PersonReport {
	snapshot := ledger.Snapshot()
	labels := make([]string, 0, len(snapshot))
	for label := range snapshot {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	people := make([]PersonReport, 0, len(labels))
	for _, label := range labels {
		stats := snapshot[label]
		var total int64
		for _, s := range stats {
			total += s.DurationMs
		}
		people = append(people, PersonReport{Label: label, TotalMs: total, Emotions: stats})
	}
	return people
}
