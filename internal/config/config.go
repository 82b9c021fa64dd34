package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Gallery  GalleryConfig  `yaml:"gallery"`
	Dedup    DedupConfig    `yaml:"dedup"`
	Session  SessionConfig  `yaml:"session"`
	Detector DetectorConfig `yaml:"detector"`
	Register RegisterConfig `yaml:"register"`
	Database DatabaseConfig `yaml:"-"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Web      WebConfig      `yaml:"web"`
	Log      LogConfig      `yaml:"log"`
}

// GalleryConfig selects the persistence backend and the matching parameters.
type GalleryConfig struct {
	Backend   string  `yaml:"backend"`   // file, sqlite, mysql or postgres
	Path      string  `yaml:"path"`      // root directory of the file backend
	DSN       string  `yaml:"dsn"`       // sqlite file or mysql DSN
	Threshold float64 `yaml:"threshold"` // maximum L2 distance accepted as a match
	Dim       int     `yaml:"dim"`       // embedding dimension
}

type DedupConfig struct {
	Strategy   string        `yaml:"strategy"` // nearest or fingerprint
	TTL        time.Duration `yaml:"ttl"`
	Reprompt   time.Duration `yaml:"reprompt"`
	Distance   float64       `yaml:"distance"`
	MaxEntries int           `yaml:"max_entries"`
}

type SessionConfig struct {
	Interval    time.Duration `yaml:"interval"`
	EventBuffer int           `yaml:"event_buffer"`
	ReportTTL   time.Duration `yaml:"report_ttl"`
}

// DetectorConfig points at the external face detection/embedding service.
type DetectorConfig struct {
	URL         string        `yaml:"url"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxFailures uint32        `yaml:"max_failures"` // consecutive failures before the circuit opens
	OpenTimeout time.Duration `yaml:"open_timeout"` // how long the circuit stays open
}

type RegisterConfig struct {
	Rate  float64 `yaml:"rate"`
	Burst int     `yaml:"burst"`
}

// DatabaseConfig is used by the postgres backend only.
type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
}

// WebConfig configures the HTTP server.
type WebConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"` // extra CORS/WebSocket origins; localhost is always allowed
	ReplayDir      string   `yaml:"replay_dir"`      // root for directory sources; empty disables them
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// envString returns the environment variable or the default when unset or empty.
func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a positive float.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

// envList reads a comma-separated environment variable.
func envList(key string, defaultVal []string) []string {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	var out []string
	for item := range strings.SplitSeq(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// envDuration accepts Go durations ("800ms", "30s") or plain milliseconds ("800").
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return defaultVal
	}
	if ms, err := strconv.Atoi(s); err == nil {
		if ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

// Defaults returns the embedded defaults without applying the environment.
func Defaults() *Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	cfg.Database = DatabaseConfig{MaxOpenConns: 25, MaxIdleConns: 5}
	return &cfg
}

func Load() *Config {
	d := Defaults()

	return &Config{
		Gallery: GalleryConfig{
			Backend:   strings.ToLower(envString("GALLERY_BACKEND", d.Gallery.Backend)),
			Path:      envString("GALLERY_PATH", d.Gallery.Path),
			DSN:       envString("GALLERY_DSN", d.Gallery.DSN),
			Threshold: envFloat("MATCH_THRESHOLD", d.Gallery.Threshold),
			Dim:       envInt("EMBEDDING_DIM", d.Gallery.Dim),
		},
		Dedup: DedupConfig{
			Strategy:   strings.ToLower(envString("DEDUP_STRATEGY", d.Dedup.Strategy)),
			TTL:        envDuration("DEDUP_TTL", d.Dedup.TTL),
			Reprompt:   envDuration("DEDUP_REPROMPT", d.Dedup.Reprompt),
			Distance:   envFloat("DEDUP_DISTANCE", d.Dedup.Distance),
			MaxEntries: envInt("DEDUP_MAX_ENTRIES", d.Dedup.MaxEntries),
		},
		Session: SessionConfig{
			Interval:    envDuration("SESSION_INTERVAL", d.Session.Interval),
			EventBuffer: envInt("SESSION_EVENT_BUFFER", d.Session.EventBuffer),
			ReportTTL:   envDuration("SESSION_REPORT_TTL", d.Session.ReportTTL),
		},
		Detector: DetectorConfig{
			URL:         envString("DETECTOR_URL", d.Detector.URL),
			Timeout:     envDuration("DETECTOR_TIMEOUT", d.Detector.Timeout),
			MaxFailures: uint32(envInt("DETECTOR_MAX_FAILURES", int(d.Detector.MaxFailures))), //nolint:gosec // positive by construction
			OpenTimeout: envDuration("DETECTOR_OPEN_TIMEOUT", d.Detector.OpenTimeout),
		},
		Register: RegisterConfig{
			Rate:  envFloat("REGISTER_RATE", d.Register.Rate),
			Burst: envInt("REGISTER_BURST", d.Register.Burst),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", d.Database.MaxOpenConns),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", d.Database.MaxIdleConns),
		},
		MQTT: MQTTConfig{
			Broker:   os.Getenv("MQTT_BROKER"),
			Topic:    envString("MQTT_TOPIC", d.MQTT.Topic),
			ClientID: envString("MQTT_CLIENT_ID", d.MQTT.ClientID),
		},
		Web: WebConfig{
			Host:           envString("WEB_HOST", d.Web.Host),
			Port:           envInt("WEB_PORT", d.Web.Port),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS", d.Web.AllowedOrigins),
			ReplayDir:      envString("WEB_REPLAY_DIR", d.Web.ReplayDir),
		},
		Log: LogConfig{
			Level:  envString("LOG_LEVEL", d.Log.Level),
			Format: envString("LOG_FORMAT", d.Log.Format),
		},
	}
}
