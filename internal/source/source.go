// Package source opens import inputs from local paths or http(s) URLs and
// decodes them to UTF-8.
package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/kjannette/finagg-backend/internal/httputil"
)

type Opener struct {
	httpClient *http.Client
	retry      httputil.RetryConfig
}

func NewOpener(log *zap.SugaredLogger) *Opener {
	return &Opener{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		retry: httputil.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   2 * time.Second,
			MaxDelay:    10 * time.Second,
			Log:         log,
		},
	}
}

func isURL(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}

// Open returns a UTF-8 reader over location. The caller closes it.
func (o *Opener) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	if strings.TrimSpace(location) == "" {
		return nil, fmt.Errorf("source: empty location")
	}

	var raw io.ReadCloser
	if isURL(location) {
		resp, err := httputil.Do(ctx, o.httpClient, o.retry, func() (*http.Request, error) {
			return http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
		})
		if err != nil {
			return nil, fmt.Errorf("download %s: %w", location, err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("download %s: status %d", location, resp.StatusCode)
		}
		raw = resp.Body
	} else {
		f, err := os.Open(location)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", location, err)
		}
		raw = f
	}

	return &decoded{Reader: Decode(raw), closer: raw}, nil
}

// Decode strips a UTF-8 BOM and converts UTF-16 input carrying a BOM to UTF-8.
// Input without a BOM is passed through as UTF-8.
func Decode(r io.Reader) io.Reader {
	return transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
}

type decoded struct {
	io.Reader
	closer io.Closer
}

func (d *decoded) Close() error { return d.closer.Close() }
