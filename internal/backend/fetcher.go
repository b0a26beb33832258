package backend

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mdobak/go-xerrors"
)

// HTTPFetcher downloads raster files. Relative paths resolve against Base.
type HTTPFetcher struct {
	Base    string
	Client  *http.Client
	Timeout time.Duration
	// MaxBytes bounds the body size; zero means 256 MiB.
	MaxBytes int64
}

// Fetch GETs path bypassing caches.
func (f *HTTPFetcher) Fetch(ctx context.Context, path string) ([]byte, error) {
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	u := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		u = strings.TrimRight(f.Base, "/") + "/" + strings.TrimLeft(path, "/")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, xerrors.New(err)
	}
	req.Header.Set("Cache-Control", "no-store")

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, xerrors.New(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, xerrors.New(fmt.Errorf("HTTP error %d (%s)", resp.StatusCode, http.StatusText(resp.StatusCode)))
	}

	limit := f.MaxBytes
	if limit <= 0 {
		limit = 256 << 20
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, xerrors.New(err)
	}
	if int64(len(data)) > limit {
		return nil, xerrors.Newf("raster exceeds %d bytes", limit)
	}
	return data, nil
}
