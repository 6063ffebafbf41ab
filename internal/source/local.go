package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/vk/ucdpipe/internal/ctxlog"
	"github.com/vk/ucdpipe/internal/model"
)

// Local reads a mirror laid out as <root>/<version>/<path>.
type Local struct {
	Root string
}

// NewLocal creates a backend rooted at root.
func NewLocal(root string) *Local {
	return &Local{Root: root}
}

func (l *Local) versionDir(version string) string {
	return filepath.Join(l.Root, filepath.FromSlash(version))
}

func (l *Local) filePath(file model.FileIdentity) string {
	return filepath.Join(l.versionDir(file.Version), filepath.FromSlash(file.Path))
}

// ListFiles walks the version directory and returns every regular file.
func (l *Local) ListFiles(ctx context.Context, version string) ([]model.FileIdentity, error) {
	logger := ctxlog.FromContext(ctx)
	dir := l.versionDir(version)

	var files []model.FileIdentity
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		files = append(files, model.NewFileIdentity(version, filepath.ToSlash(rel)))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	logger.Debug("Listed local mirror.", "dir", dir, "files", len(files))
	return files, nil
}

// ReadFile reads the whole file.
func (l *Local) ReadFile(_ context.Context, file model.FileIdentity) ([]byte, error) {
	return os.ReadFile(l.filePath(file))
}

// ReadFileStream opens the file for incremental reading within opts bounds.
func (l *Local) ReadFileStream(_ context.Context, file model.FileIdentity, opts StreamOptions) (io.ReadCloser, error) {
	f, err := os.Open(l.filePath(file))
	if err != nil {
		return nil, err
	}
	if opts.Start > 0 {
		if _, err := f.Seek(opts.Start, io.SeekStart); err != nil {
			f.Close()
			return nil, err
		}
	}
	if opts.End > opts.Start {
		return &limitedFile{Reader: io.LimitReader(f, opts.End-opts.Start), f: f}, nil
	}
	return f, nil
}

type limitedFile struct {
	io.Reader
	f *os.File
}

func (l *limitedFile) Close() error { return l.f.Close() }

// Metadata stats the file and hashes its content.
func (l *Local) Metadata(_ context.Context, file model.FileIdentity) (Metadata, error) {
	p := l.filePath(file)
	info, err := os.Stat(p)
	if err != nil {
		return Metadata{}, err
	}
	f, err := os.Open(p)
	if err != nil {
		return Metadata{}, err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return Metadata{}, err
	}
	return Metadata{
		Size:         info.Size(),
		Hash:         hex.EncodeToString(h.Sum(nil)),
		LastModified: info.ModTime(),
	}, nil
}

// Versions returns the version directories directly under the root.
func (l *Local) Versions() ([]string, error) {
	entries, err := os.ReadDir(l.Root)
	if err != nil {
		return nil, err
	}
	var versions []string
	for _, e := range entries {
		if e.IsDir() {
			versions = append(versions, e.Name())
		}
	}
	return versions, nil
}
