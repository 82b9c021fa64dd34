package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/aarthig0611/face-recognition-app/internal/config"
	"github.com/aarthig0611/face-recognition-app/internal/constants"
	"github.com/aarthig0611/face-recognition-app/internal/detector"
	"github.com/aarthig0611/face-recognition-app/internal/embedding"
	"github.com/aarthig0611/face-recognition-app/internal/registration"
)

var importCmd = &cobra.Command{
	Use:   "import [dir]",
	Short: "Import a labeled_images directory into the gallery",
	Long: `Import reference faces from a directory laid out as <dir>/<name>/<file>.

A .json file holding a descriptor (an array, or an object with a
"descriptor" array) is imported as-is, together with an image of the same
base name when present. An image without a descriptor is sent to the face
detector and imported when exactly one face is found.

Descriptors that were registered before are skipped.

Example:
  facerec import labeled_images
  facerec import labeled_images --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().Int("concurrency", constants.DefaultConcurrency, "Number of files processed in parallel")
	importCmd.Flags().Bool("dry-run", false, "List what would be imported without storing anything")
	importCmd.Flags().Bool("json", false, "Output as JSON")
}

var imageExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".webp": true, ".bmp": true, ".gif": true}

// importItem is one reference face: a descriptor file, an image, or both.
type importItem struct {
	Name      string `json:"name"`
	JSONPath  string `json:"json,omitempty"`
	ImagePath string `json:"image,omitempty"`
}

// ImportResult summarizes an import run.
type ImportResult struct {
	Success       bool     `json:"success"`
	Found         int      `json:"found"`
	Imported      int      `json:"imported"`
	Duplicates    int      `json:"duplicates"`
	Errors        int      `json:"errors"`
	Failures      []string `json:"failures,omitempty"`
	DurationMs    int64    `json:"duration_ms"`
	DurationHuman string   `json:"duration_human,omitempty"`
}

// collectImportItems pairs descriptor and image files by base name inside
// every first-level subdirectory of root. The subdirectory names the person.
func collectImportItems(root string) ([]importItem, error) {
	dirs, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}

	var items []importItem
	for _, d := range dirs {
		if !d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			continue
		}
		files, err := os.ReadDir(filepath.Join(root, d.Name()))
		if err != nil {
			return nil, err
		}

		byBase := map[string]*importItem{}
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			ext := strings.ToLower(filepath.Ext(f.Name()))
			if ext != ".json" && !imageExtensions[ext] {
				continue
			}
			base := strings.TrimSuffix(f.Name(), filepath.Ext(f.Name()))
			item, ok := byBase[base]
			if !ok {
				item = &importItem{Name: d.Name()}
				byBase[base] = item
			}
			path := filepath.Join(root, d.Name(), f.Name())
			if ext == ".json" {
				item.JSONPath = path
			} else if item.ImagePath == "" {
				item.ImagePath = path
			}
		}

		bases := make([]string, 0, len(byBase))
		for base := range byBase {
			bases = append(bases, base)
		}
		sort.Strings(bases)
		for _, base := range bases {
			items = append(items, *byBase[base])
		}
	}
	return items, nil
}

// readDescriptorFile accepts [..] or {"descriptor": [..]}.
func readDescriptorFile(path string) (embedding.Embedding, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var e embedding.Embedding
	if err := json.Unmarshal(raw, &e); err == nil {
		return e, nil
	}
	var wrapped struct {
		Descriptor embedding.Embedding `json:"descriptor"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(wrapped.Descriptor) == 0 {
		return nil, fmt.Errorf("%s holds no descriptor", path)
	}
	return wrapped.Descriptor, nil
}

// buildImportRequest reads the descriptor (detecting it from the image when
// missing) and the optional photo of item.
func buildImportRequest(ctx context.Context, det detector.Detector, item importItem) (registration.Request, error) {
	req := registration.Request{Name: item.Name}

	if item.ImagePath != "" {
		photo, err := os.ReadFile(item.ImagePath)
		if err != nil {
			return req, err
		}
		req.Photo = photo
	}

	if item.JSONPath != "" {
		e, err := readDescriptorFile(item.JSONPath)
		if err != nil {
			return req, err
		}
		req.Embedding = e
		return req, nil
	}

	detections, err := det.Detect(ctx, req.Photo)
	if err != nil {
		return req, fmt.Errorf("detect %s: %w", item.ImagePath, err)
	}
	if len(detections) != 1 {
		return req, fmt.Errorf("%s: expected one face, found %d", item.ImagePath, len(detections))
	}
	req.Embedding = detections[0].Embedding
	return req, nil
}

func runImport(cmd *cobra.Command, args []string) error {
	startTime := time.Now()
	root := args[0]
	concurrency := mustGetInt(cmd, "concurrency")
	dryRun := mustGetBool(cmd, "dry-run")
	jsonOutput := mustGetBool(cmd, "json")
	if concurrency < 1 {
		concurrency = 1
	}

	items, err := collectImportItems(root)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", root, err)
	}

	if dryRun {
		if jsonOutput {
			return outputJSON(items)
		}
		for _, item := range items {
			source := item.JSONPath
			if source == "" {
				source = item.ImagePath + " (detect)"
			}
			fmt.Printf("%s\t%s\n", item.Name, source)
		}
		fmt.Printf("\n%d faces would be imported\n", len(items))
		return nil
	}

	cfg := config.Load()
	ctx := context.Background()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	pipeline := registration.NewPipeline(a.store, cfg.Gallery.Dim,
		registration.WithLabelResolver(a.manager.Matcher().Snapshot().ResolveLabel))

	if !jsonOutput {
		fmt.Printf("Found %d faces to import\n\n", len(items))
	}

	var bar *progressbar.ProgressBar
	if !jsonOutput && len(items) > 0 {
		bar = progressbar.NewOptions(len(items),
			progressbar.OptionSetDescription("Importing faces"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("faces"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)
	}

	var imported, duplicates int64
	var failuresMu sync.Mutex
	var failures []string
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for _, item := range items {
		wg.Add(1)
		go func(item importItem) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			err := importOne(ctx, a.detector, pipeline, item)
			switch {
			case err == nil:
				atomic.AddInt64(&imported, 1)
			case errors.Is(err, registration.ErrDuplicate):
				atomic.AddInt64(&duplicates, 1)
			default:
				failuresMu.Lock()
				failures = append(failures, err.Error())
				failuresMu.Unlock()
			}

			if bar != nil {
				bar.Add(1)
			}
		}(item)
	}

	wg.Wait()

	if bar != nil {
		fmt.Println()
	}

	sort.Strings(failures)
	duration := time.Since(startTime)
	result := ImportResult{
		Success:       len(failures) == 0,
		Found:         len(items),
		Imported:      int(imported),
		Duplicates:    int(duplicates),
		Errors:        len(failures),
		Failures:      failures,
		DurationMs:    duration.Milliseconds(),
		DurationHuman: formatDuration(duration),
	}

	if jsonOutput {
		result.DurationHuman = ""
		return outputJSON(result)
	}

	fmt.Println("\nImport complete!")
	fmt.Printf("  Found:      %d\n", result.Found)
	fmt.Printf("  Imported:   %d\n", result.Imported)
	if result.Duplicates > 0 {
		fmt.Printf("  Duplicates: %d\n", result.Duplicates)
	}
	if result.Errors > 0 {
		fmt.Printf("  Errors:     %d\n", result.Errors)
		for _, f := range result.Failures {
			fmt.Printf("    %s\n", f)
		}
	}
	fmt.Printf("  Duration:   %s\n", result.DurationHuman)

	return nil
}

func importOne(ctx context.Context, det detector.Detector, pipeline *registration.Pipeline, item importItem) error {
	req, err := buildImportRequest(ctx, det, item)
	if err != nil {
		return err
	}
	if _, err := pipeline.Register(ctx, req); err != nil {
		if errors.Is(err, registration.ErrDuplicate) {
			return err
		}
		return fmt.Errorf("%s: %w", item.Name, err)
	}
	return nil
}
