package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/cpt"
	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/logging"
)

// Sink delivers encoded bundles to external storage.
type Sink interface {
	// Store writes a named bundle. Names are unique per snapshot.
	Store(ctx context.Context, name string, data []byte) error
	// Load reads a named bundle back.
	Load(ctx context.Context, name string) ([]byte, error)
}

// Archiver snapshots a CPT library into a sink.
type Archiver struct {
	library *cpt.Library
	sink    Sink
	logger  logging.Logger
}

// NewArchiver wires a library to a sink.
func NewArchiver(library *cpt.Library, sink Sink, logger logging.Logger) *Archiver {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Archiver{library: library, sink: sink, logger: logger}
}

// Snapshot exports every record in the library as one bundle.
func (a *Archiver) Snapshot(ctx context.Context, name string) error {
	records := a.library.ExportAll()
	data, err := Encode(name, records)
	if err != nil {
		return err
	}
	if err := a.sink.Store(ctx, name, data); err != nil {
		return fmt.Errorf("store archive %q: %w", name, err)
	}
	a.logger.Info("library archived",
		logging.String("archive", name),
		logging.Int("records", len(records)),
		logging.Int("bytes", len(data)))
	return nil
}

// Restore imports every record of a stored bundle into the library.
// Records already present fail individually; the rest import.
func (a *Archiver) Restore(ctx context.Context, name string) (int, error) {
	data, err := a.sink.Load(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("load archive %q: %w", name, err)
	}
	bundle, err := Decode(data)
	if err != nil {
		return 0, err
	}

	restored := 0
	for _, flat := range bundle.Records {
		if _, err := a.library.Import(flat); err != nil {
			a.logger.Warn("archive record skipped",
				logging.CPTID(flat.ID),
				logging.Error(err))
			continue
		}
		restored++
	}
	return restored, nil
}

// FSSink stores bundles as files under a directory.
type FSSink struct {
	dir string
}

// NewFSSink creates the directory if needed.
func NewFSSink(dir string) (*FSSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive directory: %w", err)
	}
	return &FSSink{dir: dir}, nil
}

func (s *FSSink) path(name string) string {
	return filepath.Join(s.dir, name+".jsonl.snappy")
}

// Store writes the bundle through a temp file and renames it into place.
func (s *FSSink) Store(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tmp := s.path(name) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path(name))
}

// Load reads a stored bundle.
func (s *FSSink) Load(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadFile(s.path(name))
}
