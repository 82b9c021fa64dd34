package cmd

import (
	"context"
	"fmt"

	"github.com/aarthig0611/face-recognition-app/internal/config"
	"github.com/aarthig0611/face-recognition-app/internal/database"
	"github.com/aarthig0611/face-recognition-app/internal/dedup"
	"github.com/aarthig0611/face-recognition-app/internal/detector"
	"github.com/aarthig0611/face-recognition-app/internal/gallery"
	"github.com/aarthig0611/face-recognition-app/internal/session"

	// Gallery backends register themselves with the database package.
	_ "github.com/aarthig0611/face-recognition-app/internal/database/filestore"
	_ "github.com/aarthig0611/face-recognition-app/internal/database/postgres"
	_ "github.com/aarthig0611/face-recognition-app/internal/database/sqlstore"
)

// app holds the components shared by the commands.
type app struct {
	cfg      *config.Config
	store    database.GalleryStore
	detector *detector.Client
	manager  *session.Manager
}

// newApp opens the gallery store, connects the detector client and builds a
// session manager with the gallery loaded.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	store, err := database.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open gallery store: %w", err)
	}

	strategy, err := dedup.ParseStrategy(cfg.Dedup.Strategy)
	if err != nil {
		store.Close()
		return nil, err
	}

	det := detector.NewClient(cfg.Detector.URL, cfg.Detector.Timeout, detector.BreakerConfig{
		MaxFailures: cfg.Detector.MaxFailures,
		Timeout:     cfg.Detector.OpenTimeout,
	})

	matcher := gallery.NewMatcher(cfg.Gallery.Threshold, cfg.Gallery.Dim)
	manager := session.NewManager(store, matcher, det, session.ManagerOptions{
		Session: session.Options{
			Interval:    cfg.Session.Interval,
			EventBuffer: cfg.Session.EventBuffer,
			Dedup: dedup.Options{
				Strategy:   strategy,
				TTL:        cfg.Dedup.TTL,
				Reprompt:   cfg.Dedup.Reprompt,
				Distance:   cfg.Dedup.Distance,
				MaxEntries: cfg.Dedup.MaxEntries,
			},
		},
		ReportTTL: cfg.Session.ReportTTL,
	})

	if _, err := manager.LoadGallery(ctx); err != nil {
		store.Close()
		return nil, err
	}

	return &app{cfg: cfg, store: store, detector: det, manager: manager}, nil
}

func (a *app) printGallery() {
	g := a.manager.Matcher().Snapshot()
	fmt.Printf("Gallery (%s): %d identities, %d embeddings\n", a.store.Backend(), g.Len(), g.EmbeddingCount())
}

func (a *app) Close() {
	a.manager.Shutdown()
	if err := a.store.Close(); err != nil {
		fmt.Printf("Warning: closing gallery store: %v\n", err)
	}
}
