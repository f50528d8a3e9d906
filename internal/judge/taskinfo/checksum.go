package taskinfo

import (
	"crypto/sha512"
	"encoding/hex"
	"io"
	"os"

	appErr "cpjudge/pkg/errors"
)

// ComputeChecksum hashes a staged snapshot with SHA-384 and returns the
// lowercase hex digest. The file is streamed; snapshots can be large.
func ComputeChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.SnapshotNotFound, "open snapshot %q failed", path)
	}
	defer f.Close()

	h := sha512.New384()
	if _, err := io.Copy(h, f); err != nil {
		return "", appErr.Wrapf(err, appErr.CacheError, "hash snapshot %q failed", path)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
