package format

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Uploader publishes one rendered document to its destination.
type Uploader interface {
	Upload(ctx context.Context, localPath, remoteName string) error
}

// LocalUploader copies documents into an export directory on the local
// filesystem, preserving the configured folder path as a subdirectory.
// A positive Timeout bounds each Upload call.
type LocalUploader struct {
	ExportDir  string
	FolderPath string
	Timeout    time.Duration
}

func (u *LocalUploader) Upload(ctx context.Context, localPath, remoteName string) error {
	if u.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.Timeout)
		defer cancel()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	target := filepath.Join(u.ExportDir, filepath.FromSlash(u.FolderPath), remoteName)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}

	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open document: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	if _, err := io.Copy(dst, &contextReader{ctx: ctx, r: src}); err != nil {
		dst.Close()
		return fmt.Errorf("copy document: %w", err)
	}
	return dst.Close()
}

// contextReader fails the copy as soon as the context is done, so the
// upload deadline holds mid-transfer too.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
