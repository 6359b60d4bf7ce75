package engine

import (
	"context"
	"fmt"

	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/archive"
	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/config"
)

// buildArchiveSink materializes the configured archive backend, or nil
// when archiving is off.
func buildArchiveSink(cfg *config.Config) (archive.Sink, error) {
	switch cfg.Archive.Backend {
	case "", "none":
		return nil, nil
	case "fs":
		return archive.NewFSSink(cfg.Archive.Dir)
	case "s3":
		return archive.NewS3Sink(context.Background(),
			cfg.Archive.Bucket, cfg.Archive.Prefix, cfg.Archive.Region)
	case "postgres":
		return archive.NewPostgresSink(context.Background(), cfg.ArchiveDSN())
	default:
		return nil, fmt.Errorf("unknown archive backend %q", cfg.Archive.Backend)
	}
}

// Snapshot archives the full CPT library under the given name. It fails
// when no archive backend is configured.
func (e *Engine) Snapshot(ctx context.Context, name string) error {
	if e.archiver == nil {
		return fmt.Errorf("no archive backend configured")
	}
	return e.archiver.Snapshot(ctx, name)
}

// RestoreArchive imports a stored snapshot into the library, returning
// the number of records restored.
func (e *Engine) RestoreArchive(ctx context.Context, name string) (int, error) {
	if e.archiver == nil {
		return 0, fmt.Errorf("no archive backend configured")
	}
	return e.archiver.Restore(ctx, name)
}
