// Package store persists lineage documents onto output files.
//
// A document is attached as an extended attribute when the filesystem
// allows it, otherwise written to a hidden side file next to the output:
//
//	/data/out.csv  ->  /data/.out.csv.lineage
//
// Reads check the attribute first, then the side file. Finding neither
// means the file has no known history, which is not an error.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/albertocavalcante/lineage/internal/log"
	"github.com/albertocavalcante/lineage/pkg/config"
	"github.com/albertocavalcante/lineage/pkg/provenance"
)

// ErrTargetMissing is returned when the file to annotate does not exist.
var ErrTargetMissing = errors.New("target file does not exist")

// errNoAttribute means the attribute is absent or unsupported.
var errNoAttribute = errors.New("no such attribute")

// Tier identifies where a document was written.
type Tier int

const (
	TierNone Tier = iota
	TierXattr
	TierSideFile
)

func (t Tier) String() string {
	switch t {
	case TierXattr:
		return "xattr"
	case TierSideFile:
		return "sidefile"
	default:
		return "none"
	}
}

// Options configures a Store.
type Options struct {
	// XattrKey is the attribute name, e.g. "user.lineage".
	XattrKey string
	// Marker is the side file suffix, e.g. "lineage".
	Marker string
	// SideFileOnly skips extended attributes entirely.
	SideFileOnly bool
}

// Store reads and writes lineage documents for files.
type Store struct {
	opts Options
}

// New creates a store with the given options. Empty fields take defaults.
func New(opts Options) *Store {
	defaults := config.NewConfig().Persist
	if opts.XattrKey == "" {
		opts.XattrKey = defaults.XattrKey
	}
	if opts.Marker == "" {
		opts.Marker = defaults.SideFileMarker
	}
	if !xattrSupported {
		opts.SideFileOnly = true
	}
	return &Store{opts: opts}
}

// FromConfig creates a store from persistence settings.
func FromConfig(cfg config.PersistConfig) *Store {
	return New(Options{
		XattrKey:     cfg.XattrKey,
		Marker:       cfg.SideFileMarker,
		SideFileOnly: cfg.Mode == config.ModeSideFile,
	})
}

// SideFileName returns the side file path for path.
func (s *Store) SideFileName(path string) string {
	dir, base := filepath.Split(path)
	return filepath.Join(dir, "."+base+"."+s.opts.Marker)
}

// IsSideFile reports whether path names one of this store's side files.
func (s *Store) IsSideFile(path string) bool {
	base := filepath.Base(path)
	suffix := "." + s.opts.Marker
	return len(base) > len(suffix)+1 && base[0] == '.' && base[len(base)-len(suffix):] == suffix
}

// Persist attaches doc to the file at path and reports which tier took it.
func (s *Store) Persist(path string, doc *provenance.Document) (Tier, error) {
	data, err := doc.Marshal()
	if err != nil {
		return TierNone, fmt.Errorf("failed to encode document for %s: %w", path, err)
	}
	return s.PersistRaw(path, data)
}

// PersistRaw attaches already-encoded document bytes to path.
func (s *Store) PersistRaw(path string, data []byte) (Tier, error) {
	logger := log.Component("store")

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return TierNone, fmt.Errorf("%w: %s", ErrTargetMissing, path)
		}
		return TierNone, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if !s.opts.SideFileOnly {
		err := setXattr(path, s.opts.XattrKey, data)
		if err == nil {
			logger.Debug("attached lineage", "path", path, "tier", TierXattr, "bytes", len(data))
			return TierXattr, nil
		}
		logger.Debug("xattr rejected, using side file", "path", path, "error", err)
		// A stale attribute would shadow the side file on read.
		_ = removeXattr(path, s.opts.XattrKey)
	}

	side := s.SideFileName(path)
	if err := writeFileAtomic(side, data); err != nil {
		return TierNone, fmt.Errorf("failed to write side file for %s: %w", path, err)
	}
	logger.Debug("attached lineage", "path", path, "tier", TierSideFile, "bytes", len(data))
	return TierSideFile, nil
}

// Load returns the lineage document of path, or nil if it has none.
func (s *Store) Load(path string) (*provenance.Document, error) {
	data, err := s.LoadRaw(path)
	if err != nil || data == nil {
		return nil, err
	}
	doc, err := provenance.ParseDocument(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// LoadRaw returns the encoded document of path, or nil if it has none.
func (s *Store) LoadRaw(path string) ([]byte, error) {
	if !s.opts.SideFileOnly {
		data, err := getXattr(path, s.opts.XattrKey)
		switch {
		case err == nil:
			return data, nil
		case errors.Is(err, errNoAttribute), errors.Is(err, fs.ErrNotExist):
		default:
			log.Component("store").Debug("xattr read failed", "path", path, "error", err)
		}
	}

	data, err := os.ReadFile(s.SideFileName(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read side file for %s: %w", path, err)
	}
	return data, nil
}

// Remove clears both tiers for path.
func (s *Store) Remove(path string) error {
	if !s.opts.SideFileOnly {
		if err := removeXattr(path, s.opts.XattrKey); err != nil &&
			!errors.Is(err, errNoAttribute) && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove attribute from %s: %w", path, err)
		}
	}
	if err := os.Remove(s.SideFileName(path)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove side file for %s: %w", path, err)
	}
	return nil
}

// writeFileAtomic writes to a temp file first, then renames it into place.
func writeFileAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
