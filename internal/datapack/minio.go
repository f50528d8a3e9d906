package datapack

import (
	"archive/tar"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	appErr "cpjudge/pkg/errors"
	"cpjudge/pkg/logger"

	"go.uber.org/zap"
)

// MinioConfig configures the object-storage puller.
type MinioConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	// Object is the key of the tar.zst archive holding the test-case tree.
	Object string `mapstructure:"object"`
	// Hash, when set, is the expected SHA-256 of the archive.
	Hash string `mapstructure:"hash"`
}

// MinioPuller downloads a zstd-compressed tar of the whole test-case tree
// and unpacks it over the local directory.
type MinioPuller struct {
	client *minio.Client
	cfg    MinioConfig
	dir    string
}

// NewMinioPuller creates the object-storage puller.
func NewMinioPuller(cfg MinioConfig, dir string) (*MinioPuller, error) {
	if cfg.Bucket == "" || cfg.Object == "" {
		return nil, appErr.New(appErr.ConfigInvalid).WithMessage("minio bucket and object are required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DataPackError, "create minio client failed")
	}
	return &MinioPuller{client: client, cfg: cfg, dir: dir}, nil
}

// Pull downloads the archive to a temp file, verifies its hash and
// extracts it. The download is staged so a broken transfer never corrupts
// the live tree.
func (p *MinioPuller) Pull(ctx context.Context) error {
	obj, err := p.client.GetObject(ctx, p.cfg.Bucket, p.cfg.Object, minio.GetObjectOptions{})
	if err != nil {
		return appErr.Wrapf(err, appErr.DataPackError, "download data pack failed")
	}
	defer obj.Close()

	tmp, err := os.CreateTemp("", "datapack-*.tar.zst")
	if err != nil {
		return appErr.Wrapf(err, appErr.DataPackError, "create staging file failed")
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	hasher := sha256.New()
	if _, err := io.Copy(tmp, io.TeeReader(obj, hasher)); err != nil {
		return appErr.Wrapf(err, appErr.DataPackError, "write staging file failed")
	}
	if p.cfg.Hash != "" {
		actual := hex.EncodeToString(hasher.Sum(nil))
		if !strings.EqualFold(actual, p.cfg.Hash) {
			return appErr.New(appErr.DataPackError).WithMessage("data pack hash mismatch")
		}
	}

	if err := extractDataPack(tmp.Name(), p.dir); err != nil {
		return err
	}
	logger.Info(ctx, "test cases updated from object storage",
		zap.String("bucket", p.cfg.Bucket), zap.String("object", p.cfg.Object))
	return nil
}

func extractDataPack(srcPath, dstDir string) error {
	file, err := os.Open(srcPath)
	if err != nil {
		return appErr.Wrapf(err, appErr.DataPackError, "open data pack failed")
	}
	defer file.Close()

	zstdReader, err := zstd.NewReader(file)
	if err != nil {
		return appErr.Wrapf(err, appErr.DataPackError, "create zstd reader failed")
	}
	defer zstdReader.Close()

	tr := tar.NewReader(zstdReader)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return appErr.Wrapf(err, appErr.DataPackError, "read tar entry failed")
		}
		if hdr.Name == "" {
			continue
		}
		cleanName := filepath.Clean(hdr.Name)
		if strings.HasPrefix(cleanName, "..") || filepath.IsAbs(cleanName) {
			return appErr.New(appErr.DataPackError).WithMessage("invalid tar entry path")
		}
		target := filepath.Join(dstDir, cleanName)
		if !strings.HasPrefix(target, filepath.Clean(dstDir)+string(filepath.Separator)) {
			return appErr.New(appErr.DataPackError).WithMessage("tar entry escape detected")
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return appErr.Wrapf(err, appErr.DataPackError, "create dir failed")
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return appErr.Wrapf(err, appErr.DataPackError, "create parent dir failed")
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, fs.FileMode(hdr.Mode))
			if err != nil {
				return appErr.Wrapf(err, appErr.DataPackError, "create file failed")
			}
			if _, err := io.Copy(out, tr); err != nil {
				_ = out.Close()
				return appErr.Wrapf(err, appErr.DataPackError, "write file failed")
			}
			_ = out.Close()
		default:
			// skip other types
		}
	}
	return nil
}
