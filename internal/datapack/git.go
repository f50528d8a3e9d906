package datapack

import (
	"bytes"
	"context"
	"os/exec"

	appErr "cpjudge/pkg/errors"
	"cpjudge/pkg/logger"

	"go.uber.org/zap"
)

// GitPuller updates a test-case checkout in place. The directory is
// expected to be a git submodule of the deployment repo, so a pull there
// fast-forwards to the published data.
type GitPuller struct {
	dir string
}

// NewGitPuller creates a puller for the checkout at dir.
func NewGitPuller(dir string) *GitPuller {
	return &GitPuller{dir: dir}
}

// Pull runs git pull in the test-case directory.
func (p *GitPuller) Pull(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "git", "pull", "--ff-only")
	cmd.Dir = p.dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		logger.Error(ctx, "git pull failed",
			zap.String("dir", p.dir), zap.String("output", out.String()))
		return appErr.Wrapf(err, appErr.DataPackError, "git pull in %s failed", p.dir)
	}
	logger.Info(ctx, "test cases updated from git",
		zap.String("dir", p.dir), zap.String("output", out.String()))
	return nil
}
