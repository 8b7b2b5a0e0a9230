// Package assets stores media files under collision-free generated names.
// The same Store type backs the working assets folder used during
// extraction and the media folder the importer publishes into.
package assets

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/dgallion1/quizpack/internal/doctree"
)

// ErrTooLarge is returned when an asset exceeds the configured size cap.
var ErrTooLarge = errors.New("asset exceeds size limit")

// ErrNotFound is returned for names the store does not hold.
var ErrNotFound = errors.New("asset not found")

// Store writes files into one directory.
type Store struct {
	dir      string
	prefix   string
	maxBytes int64
	dl       *downloader
}

// Options configures a Store. Zero values fall back to defaults.
type Options struct {
	Prefix   string
	MaxBytes int64
	Download DownloadOptions
}

// New creates the directory if needed and returns a Store rooted there.
func New(dir string, opts Options) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create asset dir %s: %w", dir, err)
	}
	if opts.Prefix == "" {
		opts.Prefix = "asset-"
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 20 << 20
	}
	if opts.Download.MaxBytes <= 0 {
		opts.Download.MaxBytes = opts.MaxBytes
	}
	return &Store{
		dir:      dir,
		prefix:   opts.Prefix,
		maxBytes: opts.MaxBytes,
		dl:       newDownloader(opts.Download),
	}, nil
}

// Dir returns the root directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the on-disk path of a stored name.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, filepath.Base(name))
}

// Exists reports whether name is present in the store.
func (s *Store) Exists(name string) bool {
	if name == "" {
		return false
	}
	info, err := os.Stat(s.Path(name))
	return err == nil && info.Mode().IsRegular()
}

// Open opens a stored file for reading.
func (s *Store) Open(name string) (*os.File, error) {
	f, err := os.Open(s.Path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return f, err
}

// Save writes data under a generated name that keeps the extension of
// original and returns the generated name.
func (s *Store) Save(original string, data []byte) (string, error) {
	if int64(len(data)) > s.maxBytes {
		return "", fmt.Errorf("%w: %s is %d bytes", ErrTooLarge, original, len(data))
	}
	return s.write(extOf(original), bytes.NewReader(data))
}

// SaveReader streams r into the store the same way Save does.
func (s *Store) SaveReader(original string, r io.Reader) (string, error) {
	return s.write(extOf(original), r)
}

// Import copies the file name from src into s under a new name.
func (s *Store) Import(src *Store, name string) (string, error) {
	f, err := src.Open(name)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return s.write(extOf(name), f)
}

// write streams r into a fresh file. Names are retried on the unlikely
// collision with an existing file.
func (s *Store) write(ext string, r io.Reader) (string, error) {
	var (
		f    *os.File
		name string
		err  error
	)
	for range 5 {
		name = s.newName(ext)
		f, err = os.OpenFile(s.Path(name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if !errors.Is(err, fs.ErrExist) {
			break
		}
	}
	if err != nil {
		return "", fmt.Errorf("create asset file: %w", err)
	}

	n, err := io.Copy(f, io.LimitReader(r, s.maxBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > s.maxBytes {
		err = fmt.Errorf("%w: more than %d bytes", ErrTooLarge, s.maxBytes)
	}
	if err != nil {
		os.Remove(s.Path(name))
		return "", fmt.Errorf("write asset %s: %w", name, err)
	}
	return name, nil
}

// newName returns prefix + 12 hex characters + ext.
func (s *Store) newName(ext string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return s.prefix + id[:12] + ext
}

// Remove deletes the named files, ignoring ones that are already gone.
func (s *Store) Remove(names ...string) {
	for _, name := range names {
		if name != "" {
			os.Remove(s.Path(name))
		}
	}
}

// PersistExtraction writes every in-memory asset of ext to the store and
// rewrites the block references to the stored names. It returns the names
// written so callers can remove them if the import does not go through.
func (s *Store) PersistExtraction(ext *doctree.Extraction) ([]string, error) {
	renamed := make(map[string]string, len(ext.Assets))
	var written []string
	for original, data := range ext.Assets {
		name, err := s.Save(original, data)
		if err != nil {
			s.Remove(written...)
			return nil, fmt.Errorf("persist %s: %w", original, err)
		}
		renamed[original] = name
		written = append(written, name)
	}
	for i := range ext.Blocks {
		for j, ref := range ext.Blocks[i].Assets {
			if name, ok := renamed[ref.FileName]; ok {
				ext.Blocks[i].Assets[j].FileName = name
			}
		}
	}
	ext.Assets = nil
	return written, nil
}

func extOf(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if len(ext) > 10 || strings.ContainsAny(ext, `/\?#&=`) {
		return ""
	}
	return ext
}
