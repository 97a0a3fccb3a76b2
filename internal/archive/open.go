// Package archive selects the snapshot archive backend from configuration.
package archive

import (
	"calendarcore/internal/archive/core"
	"calendarcore/internal/config"
	"calendarcore/internal/infra/archive/fs"
	"calendarcore/internal/infra/archive/memory"
	"calendarcore/internal/infra/archive/s3"
	"context"
	"fmt"
)

// Store aliases core.Store for callers that only need the factory.
type Store = core.Store

// Open returns the archive backend named by cfg.Driver (default fs).
func Open(ctx context.Context, cfg config.Archive) (Store, error) {
	switch core.Driver(cfg.Driver) {
	case core.DriverFilesystem, "":
		return fs.New(cfg.FSRoot)
	case core.DriverMemory:
		return memory.New(), nil
	case core.DriverS3:
		return s3.New(ctx, s3.Config{
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			PathStyle: cfg.S3.PathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown archive driver %s", cfg.Driver)
	}
}
