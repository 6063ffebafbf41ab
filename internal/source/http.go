package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/vk/ucdpipe/internal/ctxlog"
	"github.com/vk/ucdpipe/internal/model"
	"resty.dev/v3"
)

// IndexFile is the per-version listing an HTTP store serves.
const IndexFile = "index.json"

// HTTPConfig configures the HTTP backend.
type HTTPConfig struct {
	BaseURL    string
	Timeout    time.Duration
	RetryCount int
}

// HTTP reads files from a store serving <base>/<version>/<path> and a JSON
// array of paths at <base>/<version>/index.json.
type HTTP struct {
	client *resty.Client
}

// NewHTTP creates an HTTP backend. Close releases its connections.
func NewHTTP(cfg HTTPConfig) *HTTP {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount)
	return &HTTP{client: client}
}

// Close releases the underlying client.
func (h *HTTP) Close() error {
	return h.client.Close()
}

func escapePath(version, p string) string {
	segs := strings.Split(p, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return "/" + url.PathEscape(version) + "/" + strings.Join(segs, "/")
}

// ListFiles fetches and decodes the version index.
func (h *HTTP) ListFiles(ctx context.Context, version string) ([]model.FileIdentity, error) {
	logger := ctxlog.FromContext(ctx)

	res, err := h.client.R().SetContext(ctx).Get(escapePath(version, IndexFile))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch index for version '%s': %w", version, err)
	}
	if res.IsError() {
		return nil, fmt.Errorf("failed to fetch index for version '%s': %s", version, res.Status())
	}

	var paths []string
	if err := json.Unmarshal(res.Bytes(), &paths); err != nil {
		return nil, fmt.Errorf("invalid index for version '%s': %w", version, err)
	}

	files := make([]model.FileIdentity, 0, len(paths))
	for _, p := range paths {
		files = append(files, model.NewFileIdentity(version, p))
	}
	logger.Debug("Fetched remote index.", "version", version, "files", len(files))
	return files, nil
}

// ReadFile downloads the whole file.
func (h *HTTP) ReadFile(ctx context.Context, file model.FileIdentity) ([]byte, error) {
	res, err := h.client.R().SetContext(ctx).Get(escapePath(file.Version, file.Path))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", file.Key(), err)
	}
	if res.IsError() {
		return nil, fmt.Errorf("failed to fetch %s: %s", file.Key(), res.Status())
	}
	return res.Bytes(), nil
}

// ReadFileStream returns the response body unread. Byte ranges are requested
// with a Range header.
func (h *HTTP) ReadFileStream(ctx context.Context, file model.FileIdentity, opts StreamOptions) (io.ReadCloser, error) {
	req := h.client.R().SetContext(ctx).SetDoNotParseResponse(true)
	if opts.Start > 0 || opts.End > 0 {
		rng := fmt.Sprintf("bytes=%d-", opts.Start)
		if opts.End > opts.Start {
			rng += fmt.Sprintf("%d", opts.End-1)
		}
		req.SetHeader("Range", rng)
	}

	res, err := req.Get(escapePath(file.Version, file.Path))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", file.Key(), err)
	}
	if res.IsError() {
		if res.Body != nil {
			res.Body.Close()
		}
		return nil, fmt.Errorf("failed to fetch %s: %s", file.Key(), res.Status())
	}
	return res.Body, nil
}
