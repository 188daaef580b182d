package repository

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/jupyterlite/piplite/pkg/version"
	"github.com/klauspost/compress/gzip"
	"github.com/sethvargo/go-retry"
	"github.com/spf13/afero"
)

// ErrNotFound is returned when an index, project or artifact does not exist.
var ErrNotFound = errors.New("not found")

// maxResponseSize bounds a single download.
const maxResponseSize = 512 << 20

// Fetcher retrieves the bytes behind a URL.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// Credentials are sent as HTTP basic auth on every request made with the context.
type Credentials struct {
	Username string
	Password string
}

type credentialsKey struct{}

// ContextWithCredentials attaches credentials to ctx.
func ContextWithCredentials(ctx context.Context, creds *Credentials) context.Context {
	return context.WithValue(ctx, credentialsKey{}, creds)
}

func credentialsFromContext(ctx context.Context) *Credentials {
	creds, _ := ctx.Value(credentialsKey{}).(*Credentials)
	return creds
}

// HTTPOptions configures an HTTPFetcher.
type HTTPOptions struct {
	Timeout    time.Duration
	RetryCount uint64
	RetryDelay time.Duration
	Client     *http.Client
}

// HTTPFetcher downloads http(s) URLs with exponential backoff and reads
// file URLs through afero. Bodies of ".gz" URLs are decompressed.
type HTTPFetcher struct {
	client     *http.Client
	fs         afero.Fs
	retryCount uint64
	retryDelay time.Duration
	userAgent  string
}

// NewHTTPFetcher creates a new HTTPFetcher.
func NewHTTPFetcher(fs afero.Fs, opts HTTPOptions) *HTTPFetcher {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	delay := opts.RetryDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	return &HTTPFetcher{
		client:     client,
		fs:         fs,
		retryCount: opts.RetryCount,
		retryDelay: delay,
		userAgent:  "piplite/" + version.Number,
	}
}

// Fetch returns the body behind rawURL.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	var data []byte
	switch u.Scheme {
	case "file":
		data, err = f.readFile(u)
	case "http", "https":
		data, err = f.get(ctx, rawURL)
	default:
		return nil, fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(u.Path, ".gz") {
		return gunzip(data)
	}
	return data, nil
}

func (f *HTTPFetcher) readFile(u *url.URL) ([]byte, error) {
	data, err := afero.ReadFile(f.fs, u.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, u.Path)
		}
		return nil, fmt.Errorf("failed to read %s: %w", u.Path, err)
	}
	return data, nil
}

// get performs a GET, retrying network errors, 429 and 5xx responses.
func (f *HTTPFetcher) get(ctx context.Context, rawURL string) ([]byte, error) {
	var body []byte
	backoff := retry.WithMaxRetries(f.retryCount, retry.NewExponential(f.retryDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return err
		}
		req.Header.Set("User-Agent", f.userAgent)
		if creds := credentialsFromContext(ctx); creds != nil {
			req.SetBasicAuth(creds.Username, creds.Password)
		}
		resp, err := f.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return retry.RetryableError(fmt.Errorf("request %s: %w", rawURL, err))
		}
		defer resp.Body.Close()
		switch {
		case resp.StatusCode == http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrNotFound, rawURL)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return retry.RetryableError(fmt.Errorf("request %s: unexpected status %s", rawURL, resp.Status))
		case resp.StatusCode >= 300:
			return fmt.Errorf("request %s: unexpected status %s", rawURL, resp.Status)
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		if err != nil {
			return retry.RetryableError(fmt.Errorf("read %s: %w", rawURL, err))
		}
		body = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func gunzip(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open gzip stream: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(io.LimitReader(r, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress: %w", err)
	}
	return out, nil
}

// Router dispatches fetches by URL prefix, falling back to a default fetcher.
type Router struct {
	fallback Fetcher
	routes   []route
}

type route struct {
	prefix  string
	fetcher Fetcher
}

// NewRouter creates a Router that uses fallback for unmatched URLs.
func NewRouter(fallback Fetcher) *Router {
	return &Router{fallback: fallback}
}

// Handle routes URLs starting with prefix to f.
func (r *Router) Handle(prefix string, f Fetcher) {
	r.routes = append(r.routes, route{prefix: prefix, fetcher: f})
}

// Fetch implements Fetcher.
func (r *Router) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	for _, rt := range r.routes {
		if strings.HasPrefix(rawURL, rt.prefix) {
			return rt.fetcher.Fetch(ctx, rawURL)
		}
	}
	return r.fallback.Fetch(ctx, rawURL)
}
