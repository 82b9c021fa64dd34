// Package filestore keeps the gallery as a directory tree:
//
//	<root>/<label dir>/<unix-ms>.json   {"label", "descriptor", "fingerprint"}
//	<root>/<label dir>/<unix-ms>.<ext>  optional photo
//
// Descriptor files written without "label" or "fingerprint" are still read;
// the directory name is used as the label and the fingerprint is computed.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gosimple/slug"

	"github.com/aarthig0611/face-recognition-app/internal/config"
	"github.com/aarthig0611/face-recognition-app/internal/database"
	"github.com/aarthig0611/face-recognition-app/internal/embedding"
	"github.com/aarthig0611/face-recognition-app/internal/gallery"
	"github.com/aarthig0611/face-recognition-app/internal/logger"
)

// BackendName is the registry name of this backend.
const BackendName = "file"

var log = logger.Log

func init() {
	database.RegisterBackend(BackendName, func(_ context.Context, cfg *config.Config) (database.GalleryStore, error) {
		return Open(cfg.Gallery.Path, cfg.Gallery.Dim)
	})
}

type descriptorFile struct {
	Label       string    `json:"label,omitempty"`
	Descriptor  []float64 `json:"descriptor"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	ID          string    `json:"id,omitempty"`
}

// Store is a filesystem-backed gallery. One process owns the directory.
type Store struct {
	root string
	dim  int

	mu           sync.Mutex
	fingerprints map[string]struct{}
	dirs         map[string]string // label -> directory name
}

// Open creates root if needed and indexes the descriptors already on disk.
// Descriptors whose length is not dim, or that hold NaN or Inf, are skipped.
// A dim of 0 means embedding.Dim.
func Open(root string, dim int) (*Store, error) {
	if root == "" {
		return nil, errors.New("gallery path is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create gallery directory: %w", err)
	}

	if dim <= 0 {
		dim = embedding.Dim
	}
	s := &Store{root: root, dim: dim, fingerprints: map[string]struct{}{}, dirs: map[string]string{}}
	records, err := s.scan()
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		s.fingerprints[r.Fingerprint] = struct{}{}
		if _, ok := s.dirs[r.Label]; !ok {
			s.dirs[r.Label] = r.dir
		}
	}
	log.Infof("filestore: opened %s with %d embeddings", root, len(records))
	return s, nil
}

func (s *Store) Backend() string { return BackendName }

func (s *Store) Root() string { return s.root }

func (s *Store) Close() error { return nil }

type record struct {
	database.Registration
	dir string
}

// scan reads every descriptor file, directories and files in name order.
func (s *Store) scan() ([]record, error) {
	dirs, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read gallery directory: %w", err)
	}

	var records []record
	for _, d := range dirs {
		if !d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			continue
		}
		files, err := os.ReadDir(filepath.Join(s.root, d.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", d.Name(), err)
		}
		sort.SliceStable(files, func(i, j int) bool { return fileLess(files[i].Name(), files[j].Name()) })

		for _, f := range files {
			if f.IsDir() || filepath.Ext(f.Name()) != ".json" {
				continue
			}
			r, err := s.readDescriptor(d.Name(), f)
			if err != nil {
				log.Warnf("filestore: skipping %s/%s: %v", d.Name(), f.Name(), err)
				continue
			}
			records = append(records, r)
		}
	}
	return records, nil
}

func (s *Store) readDescriptor(dir string, f fs.DirEntry) (record, error) {
	raw, err := os.ReadFile(filepath.Join(s.root, dir, f.Name()))
	if err != nil {
		return record{}, err
	}
	var df descriptorFile
	if err := json.Unmarshal(raw, &df); err != nil {
		return record{}, fmt.Errorf("parse: %w", err)
	}
	if len(df.Descriptor) == 0 {
		return record{}, errors.New("no descriptor")
	}
	if err := embedding.Validate(df.Descriptor, s.dim); err != nil {
		return record{}, err
	}

	label := df.Label
	if label == "" {
		label = dir
	}
	e := embedding.Embedding(df.Descriptor)
	fp := df.Fingerprint
	if fp == "" {
		fp = embedding.Fingerprint(e)
	}

	r := record{dir: dir, Registration: database.Registration{
		ID:          df.ID,
		Label:       label,
		Embedding:   e,
		Fingerprint: fp,
	}}
	if ms, _, ok := parseBaseName(strings.TrimSuffix(f.Name(), ".json")); ok {
		r.CreatedAt = time.UnixMilli(ms)
	}
	return r, nil
}

// parseBaseName splits "<ms>" or "<ms>-<n>" as written by freeBaseName.
func parseBaseName(base string) (ms int64, n int, ok bool) {
	head, tail, suffixed := strings.Cut(base, "-")
	ms, err := strconv.ParseInt(head, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	if suffixed {
		if n, err = strconv.Atoi(tail); err != nil || n < 1 {
			return 0, 0, false
		}
	}
	return ms, n, true
}

// fileLess orders descriptors by registration time, then by same-millisecond
// suffix. Names that freeBaseName did not produce sort after, by name.
func fileLess(a, b string) bool {
	ams, an, aok := parseBaseName(strings.TrimSuffix(a, filepath.Ext(a)))
	bms, bn, bok := parseBaseName(strings.TrimSuffix(b, filepath.Ext(b)))
	switch {
	case aok && bok:
		if ams != bms {
			return ams < bms
		}
		if an != bn {
			return an < bn
		}
		return a < b
	case aok != bok:
		return aok
	default:
		return a < b
	}
}

// LoadAll groups descriptors by label in order of first appearance.
func (s *Store) LoadAll(ctx context.Context) ([]gallery.LabeledIdentity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.scan()
	if err != nil {
		return nil, database.Wrap("load gallery", err)
	}

	var out []gallery.LabeledIdentity
	index := map[string]int{}
	for _, r := range records {
		i, ok := index[r.Label]
		if !ok {
			i = len(out)
			index[r.Label] = i
			out = append(out, gallery.LabeledIdentity{Label: r.Label})
		}
		out[i].Embeddings = append(out[i].Embeddings, r.Embedding)
	}
	return out, nil
}

func (s *Store) HasFingerprint(ctx context.Context, fingerprint string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.fingerprints[fingerprint]
	return ok, nil
}

func (s *Store) Count(ctx context.Context) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.dirs), len(s.fingerprints), nil
}

// AppendEmbedding writes the photo first and the descriptor last, so a
// descriptor on disk always has its photo in place.
func (s *Store) AppendEmbedding(ctx context.Context, reg database.Registration) error {
	if reg.Label == "" || len(reg.Embedding) == 0 {
		return errors.New("label and embedding are required")
	}
	if err := embedding.Validate(reg.Embedding, s.dim); err != nil {
		return err
	}
	if reg.Fingerprint == "" {
		reg.Fingerprint = embedding.Fingerprint(reg.Embedding)
	}
	if reg.CreatedAt.IsZero() {
		reg.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.fingerprints[reg.Fingerprint]; ok {
		return database.ErrDuplicate
	}

	dir, ok := s.dirs[reg.Label]
	if !ok {
		dir = slug.Make(reg.Label)
		if dir == "" {
			dir = "identity"
		}
	}
	dirPath := filepath.Join(s.root, dir)
	if err := os.MkdirAll(dirPath, 0o755); err != nil {
		return database.Wrap("create identity directory", err)
	}

	base := s.freeBaseName(dirPath, reg.CreatedAt.UnixMilli())

	if len(reg.Photo) > 0 {
		ext := reg.PhotoExt
		if ext == "" {
			ext = "png"
		}
		if err := writeFileAtomic(filepath.Join(dirPath, base+"."+ext), reg.Photo); err != nil {
			return database.Wrap("write photo", err)
		}
	}

	data, err := json.Marshal(descriptorFile{
		Label:       reg.Label,
		Descriptor:  reg.Embedding,
		Fingerprint: reg.Fingerprint,
		ID:          reg.ID,
	})
	if err != nil {
		return database.Wrap("encode descriptor", err)
	}
	if err := writeFileAtomic(filepath.Join(dirPath, base+".json"), data); err != nil {
		return database.Wrap("write descriptor", err)
	}

	s.fingerprints[reg.Fingerprint] = struct{}{}
	s.dirs[reg.Label] = dir
	log.Infof("filestore: stored embedding for %q in %s/%s.json", reg.Label, dir, base)
	return nil
}

// freeBaseName returns "<ms>" or "<ms>-<n>" so that two registrations in the
// same millisecond never overwrite each other.
func (s *Store) freeBaseName(dirPath string, ms int64) string {
	base := strconv.FormatInt(ms, 10)
	for n := 1; ; n++ {
		if _, err := os.Stat(filepath.Join(dirPath, base+".json")); errors.Is(err, fs.ErrNotExist) {
			return base
		}
		base = fmt.Sprintf("%d-%d", ms, n)
	}
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}
