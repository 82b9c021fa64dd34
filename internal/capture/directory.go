package capture

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

var imageExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".webp": true}

// DirectorySource replays the image files of a directory in name order.
// Running out of files is a DeviceError wrapping io.EOF, which ends the session.
type DirectorySource struct {
	dir   string
	files []string
	next  int
}

func NewDirectorySource(dir string) *DirectorySource {
	return &DirectorySource{dir: dir}
}

func (d *DirectorySource) Name() string { return "directory" }

func (d *DirectorySource) Open(ctx context.Context) error {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return &DeviceError{Source: d.Name(), Err: err}
	}

	d.files = d.files[:0]
	for _, e := range entries {
		if e.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		d.files = append(d.files, filepath.Join(d.dir, e.Name()))
	}
	sort.Strings(d.files)
	d.next = 0

	if len(d.files) == 0 {
		return &DeviceError{Source: d.Name(), Err: fmt.Errorf("no images in %s", d.dir)}
	}
	return nil
}

func (d *DirectorySource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if d.next >= len(d.files) {
		return Frame{}, &DeviceError{Source: d.Name(), Err: io.EOF}
	}
	path := d.files[d.next]
	d.next++

	data, err := os.ReadFile(path)
	if err != nil {
		return Frame{}, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return Frame{Data: data, CapturedAt: time.Now()}, nil
}

// Remaining returns how many files have not been replayed yet.
func (d *DirectorySource) Remaining() int {
	return len(d.files) - d.next
}

func (d *DirectorySource) Close() error {
	d.files = nil
	d.next = 0
	return nil
}
