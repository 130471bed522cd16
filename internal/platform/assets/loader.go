// Package assets fetches evaluator bundles from the asset server.
package assets

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dontdude/testbox/internal/evaluator"
	"github.com/go-resty/resty/v2"
)

// DefaultPath is the asset path used when none is configured.
const DefaultPath = "/dist/"

// Loader downloads named bundles from BaseURL + path.
type Loader struct {
	client *resty.Client
	path   string
}

var _ evaluator.AssetLoader = (*Loader)(nil)

// NewLoader returns a loader rooted at baseURL. assetPath follows the same
// rules as the runner's script location.
func NewLoader(baseURL, assetPath string, timeout time.Duration) *Loader {
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(100 * time.Millisecond)

	return &Loader{client: client, path: FullPath(assetPath)}
}

// FullPath makes assetPath absolute with a trailing slash.
func FullPath(assetPath string) string {
	if assetPath == "" {
		return DefaultPath
	}
	if !strings.HasPrefix(assetPath, "/") {
		assetPath = "/" + assetPath
	}
	if !strings.HasSuffix(assetPath, "/") {
		assetPath += "/"
	}
	return assetPath
}

// Fetch returns the body of the named bundle.
func (l *Loader) Fetch(ctx context.Context, name string) ([]byte, error) {
	resp, err := l.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/javascript").
		Get(l.path + name)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", name, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("failed to fetch %s: %s", name, resp.Status())
	}
	return resp.Body(), nil
}
