// Package datapack refreshes the local test-case tree on demand. Two
// sources are supported: a git checkout updated in place, and a
// zstd-compressed tar archive fetched from object storage.
package datapack

import (
	"context"

	appErr "cpjudge/pkg/errors"
)

// Puller updates the test-case directory from its upstream source.
type Puller interface {
	Pull(ctx context.Context) error
}

// Source selects the puller implementation.
type Source string

const (
	SourceNone  Source = "none"
	SourceGit   Source = "git"
	SourceMinio Source = "minio"
)

// NoopPuller is used when test data is provisioned out of band.
type NoopPuller struct{}

func (NoopPuller) Pull(ctx context.Context) error { return nil }

// Config configures the puller.
type Config struct {
	Source Source `mapstructure:"source"`
	// Dir is the local test-case directory.
	Dir string `mapstructure:"dir"`

	Minio MinioConfig `mapstructure:"minio"`
}

// NewPuller builds the puller for the configured source.
func NewPuller(cfg Config) (Puller, error) {
	switch cfg.Source {
	case SourceNone, "":
		return NoopPuller{}, nil
	case SourceGit:
		return NewGitPuller(cfg.Dir), nil
	case SourceMinio:
		return NewMinioPuller(cfg.Minio, cfg.Dir)
	default:
		return nil, appErr.Newf(appErr.ConfigInvalid, "unknown data pack source %q", cfg.Source)
	}
}
