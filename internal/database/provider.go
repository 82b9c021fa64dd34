package database

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aarthig0611/face-recognition-app/internal/config"
)

// Opener opens a backend from the application configuration.
type Opener func(ctx context.Context, cfg *config.Config) (GalleryStore, error)

var (
	backends   = map[string]Opener{}
	backendsMu sync.RWMutex
)

// RegisterBackend registers a backend constructor under name.
// This is called from the backend packages' init to avoid import cycles.
func RegisterBackend(name string, open Opener) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[strings.ToLower(name)] = open
}

// Backends returns the registered backend names, sorted.
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()

	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open opens the backend selected by cfg.Gallery.Backend.
func Open(ctx context.Context, cfg *config.Config) (GalleryStore, error) {
	name := strings.ToLower(cfg.Gallery.Backend)
	if name == "" {
		name = "file"
	}

	backendsMu.RLock()
	open, ok := backends[name]
	backendsMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("gallery backend %q not registered (available: %s)", name, strings.Join(Backends(), ", "))
	}

	store, err := open(ctx, cfg)
	if err != nil {
		return nil, Wrap("open "+name, err)
	}
	return store, nil
}
