// Package storage writes finished signatures to disk as PNG files.
package storage

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/banshee-data/signature.capture/internal/security"
)

const (
	filePrefix      = "firma_"
	fileExt         = ".png"
	timestampLayout = "20060102_150405"
	// maxSuffix bounds the search for a free name within one second.
	maxSuffix = 1000
)

// ErrNoFreeName is returned when every candidate name for a timestamp is taken.
var ErrNoFreeName = errors.New("no free file name")

// Store saves signatures under a directory. The timestamp in each name is
// taken from the clock at save time.
type Store struct {
	fs    afero.Fs
	dir   string
	clock clockwork.Clock
}

// NewStore returns a Store writing into dir on fs.
func NewStore(fs afero.Fs, dir string, clock clockwork.Clock) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{fs: fs, dir: dir, clock: clock}
}

// Dir returns the output directory.
func (s *Store) Dir() string { return s.dir }

// FileName builds the artifact name for serial at t:
// firma_<serial>_<YYYYMMDD_HHMMSS>.png.
func FileName(serial string, t time.Time) string {
	return filePrefix + security.SanitizeFilename(serial) + "_" + t.Format(timestampLayout) + fileExt
}

// EnsureDir creates the output directory if it does not exist.
func (s *Store) EnsureDir() error {
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", s.dir, err)
	}
	return nil
}

// Save encodes img as PNG under a new file name and returns its path. An
// existing file is never overwritten: if the name is taken, a numeric suffix
// is added.
func (s *Store) Save(img image.Image, serial string) (string, error) {
	if err := s.EnsureDir(); err != nil {
		return "", err
	}

	base := FileName(serial, s.clock.Now())
	f, path, err := s.create(base)
	if err != nil {
		return "", err
	}

	if err := png.Encode(f, img); err != nil {
		f.Close()
		_ = s.fs.Remove(path)
		return "", fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		_ = s.fs.Remove(path)
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}

	log.Debug().Str("path", path).Msg("signature image written")
	return path, nil
}

func (s *Store) create(base string) (afero.File, string, error) {
	stem := strings.TrimSuffix(base, fileExt)
	for i := 0; i < maxSuffix; i++ {
		name := base
		if i > 0 {
			name = fmt.Sprintf("%s_%d%s", stem, i, fileExt)
		}
		path := filepath.Join(s.dir, name)
		if err := security.WithinDirectory(path, s.dir); err != nil {
			return nil, "", err
		}

		f, err := s.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, path, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", fmt.Errorf("failed to create %s: %w", path, err)
		}
	}
	return nil, "", fmt.Errorf("%w for %s", ErrNoFreeName, base)
}
