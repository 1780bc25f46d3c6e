package caps

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/gzip"
	"github.com/latticehq/lattice/internal/broker"
)

// Files is a per-(user, app) directory sandbox beneath a configured
// root. Names are flat; traversal is rejected.
type Files struct {
	bundle *broker.Context
	root   string
}

// NewFilesBuilder returns a files capability builder rooted at root.
func NewFilesBuilder(root string) func(*broker.Context) broker.Files {
	return func(bundle *broker.Context) broker.Files {
		return &Files{bundle: bundle, root: root}
	}
}

func (f *Files) dir() string {
	return filepath.Join(f.root, f.bundle.UserID(), f.bundle.AppID())
}

func (f *Files) resolve(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("file name required")
	}
	if strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	return filepath.Join(f.dir(), name), nil
}

// Read returns a file's contents.
func (f *Files) Read(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := f.resolve(name)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// Write stores a file, creating the scope directory as needed.
func (f *Files) Write(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := f.resolve(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(f.dir(), 0o755); err != nil {
		return fmt.Errorf("create file scope: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// List returns the file names in this scope.
func (f *Files) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(f.dir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

// Delete removes a file.
func (f *Files) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := f.resolve(name)
	if err != nil {
		return err
	}
	return os.Remove(path)
}

// ContentType sniffs a file's MIME type.
func (f *Files) ContentType(ctx context.Context, name string) (string, error) {
	data, err := f.Read(ctx, name)
	if err != nil {
		return "", err
	}
	return mimetype.Detect(data).String(), nil
}

// Export packs the scope's files into a gzipped tar archive.
func (f *Files) Export(ctx context.Context) ([]byte, error) {
	names, err := f.List(ctx)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	for _, name := range names {
		data, err := f.Read(ctx, name)
		if err != nil {
			return nil, err
		}
		hdr := &tar.Header{
			Name: name,
			Mode: 0o644,
			Size: int64(len(data)),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, fmt.Errorf("write archive header: %w", err)
		}
		if _, err := tw.Write(data); err != nil {
			return nil, fmt.Errorf("write archive entry: %w", err)
		}
	}

	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
