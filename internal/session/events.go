package session

import (
	"time"

	"github.com/aarthig0611/face-recognition-app/internal/detector"
	"github.com/aarthig0611/face-recognition-app/internal/embedding"
	"github.com/aarthig0611/face-recognition-app/internal/registration"
)

// EventType names what happened. The values are also the MQTT topic suffix
// and the SSE event name.
type EventType string

// EventType constants define the events a session emits.
const (
	EventSessionStarted        EventType = "session.started"
	EventAnnotationReady       EventType = "annotation.ready"
	EventFaceUnresolved        EventType = "face.unresolved"
	EventRegistrationSucceeded EventType = "registration.succeeded"
	EventSessionReport         EventType = "session.report"
	EventSessionFailed         EventType = "session.failed"
)

// Annotation describes one detected face for live overlay rendering.
type Annotation struct {
	Box      detector.Box `json:"box"`
	Label    string       `json:"label"`
	Distance float64      `json:"distance"`
	Age      float64      `json:"age"`
	Gender   string       `json:"gender"`
	Emotion  string       `json:"emotion,omitempty"`
}

// UnresolvedFace is an unknown face offered for registration. Crop is a PNG
// data URL and may be empty when the crop could not be produced.
type UnresolvedFace struct {
	Embedding   embedding.Embedding `json:"descriptor"`
	Fingerprint string              `json:"fingerprint"`
	Box         detector.Box        `json:"box"`
	Crop        string              `json:"imageBase64,omitempty"`
}

// Event is one notification. Exactly one payload field is set, matching Type.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId,omitempty"`
	At        time.Time `json:"at"`

	Annotation   *Annotation          `json:"annotation,omitempty"`
	Unresolved   *UnresolvedFace      `json:"unresolved,omitempty"`
	Registration *registration.Result `json:"registration,omitempty"`
	Report       *Report              `json:"report,omitempty"`
	Error        string               `json:"error,omitempty"`
}

// Sink receives events fanned out by the Manager. Publish must not block.
type Sink interface {
	Publish(Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

func (f SinkFunc) Publish(e Event) { f(e) }
