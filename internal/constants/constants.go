// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Embedding constants
const (
	// EmbeddingDim is the length of a face descriptor produced by the detector
	EmbeddingDim = 128

	// FingerprintDecimals is the rounding precision used when fingerprinting descriptors
	FingerprintDecimals = 3
)

// Face matching constants
const (
	// DefaultDistanceThreshold is the maximum Euclidean distance for a gallery match.
	// Distances equal to the threshold still match.
	DefaultDistanceThreshold = 0.6

	// UnknownLabel is the display label for faces that resolve to no identity
	UnknownLabel = "unknown"
)

// Dedup window constants
const (
	// DefaultDedupTTL is how long an unresolved face is remembered after it was last surfaced
	DefaultDedupTTL = 30 * time.Second

	// DefaultRepromptInterval is the minimum gap between two prompts for the same unknown face
	DefaultRepromptInterval = 10 * time.Second

	// DefaultDedupDistance is the nearest-neighbour radius for the nearest strategy
	DefaultDedupDistance = 0.5

	// DefaultDedupMaxEntries caps how many unresolved faces are remembered at once
	DefaultDedupMaxEntries = 10
)

// Session constants
const (
	// DefaultSampleInterval is the period between two capture ticks
	DefaultSampleInterval = 800 * time.Millisecond

	// EventChannelBuffer is the buffer size for event channels
	EventChannelBuffer = 100

	// TerminalEventTimeout is how long Stop waits for a consumer to take the
	// final session.failed / session.report events from a full channel
	TerminalEventTimeout = 2 * time.Second

	// DefaultReportTTL is how long finished session reports stay queryable
	DefaultReportTTL = time.Hour
)

// Image constants
const (
	// MaxUploadSize is the maximum size of an uploaded photo (20 MB)
	MaxUploadSize = 20 << 20

	// MaxCropSide is the longest side of a stored face crop in pixels
	MaxCropSide = 160

	// MaxImageSize is the maximum dimension (width or height) sent to the detector
	MaxImageSize = 1920
)

// CLI constants
const (
	// DefaultConcurrency is the default number of parallel workers
	DefaultConcurrency = 4
)
