// Package fetch downloads images over HTTP into a bounded buffer.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultTimeout bounds an entire request, including reading the body.
	DefaultTimeout = 30 * time.Second
	// DefaultMaxBytes is the size of the download buffer.
	DefaultMaxBytes = 2 << 20

	defaultUserAgent = "inkframe/1.0"
)

// ErrInvalidURL is returned for URLs that are empty, unparsable, or not http(s).
var ErrInvalidURL = errors.New("fetch: invalid URL")

// StatusError is returned when the server answers with anything other than 200 OK.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch: request failed: %v", e.Status)
}

// A Download holds the body of a successful request.
type Download struct {
	Bytes       []byte
	ContentType string
	// Truncated is set when the body was larger than the download buffer. Bytes holds the prefix that fit.
	Truncated bool
}

// A Fetcher issues bounded GET requests.
type Fetcher struct {
	client    *http.Client
	timeout   time.Duration
	maxBytes  int
	userAgent string
	logger    *log.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient installs a custom http.Client. Its transport decides which roots are trusted for https URLs.
func WithHTTPClient(hc *http.Client) Option {
	return func(f *Fetcher) { f.client = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) { f.timeout = d }
}

// WithMaxBytes sets the size of the download buffer.
func WithMaxBytes(n int) Option {
	return func(f *Fetcher) { f.maxBytes = n }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) { f.userAgent = ua }
}

// WithLogger sets the logger used for progress messages.
func WithLogger(l *log.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// New creates a Fetcher.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:    http.DefaultClient,
		timeout:   DefaultTimeout,
		maxBytes:  DefaultMaxBytes,
		userAgent: defaultUserAgent,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	if f.client == nil {
		f.client = http.DefaultClient
	}
	if f.timeout <= 0 {
		f.timeout = DefaultTimeout
	}
	if f.maxBytes <= 0 {
		f.maxBytes = DefaultMaxBytes
	}
	if f.logger == nil {
		f.logger = log.New(ioutil.Discard, "", 0)
	}
	return f
}

// MaxBytes returns the size of the download buffer.
func (f *Fetcher) MaxBytes() int {
	return f.maxBytes
}

func validateURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return nil
}

// Fetch downloads the resource at rawURL. At most MaxBytes bytes of the body are kept; anything beyond that is
// discarded and reported through Download.Truncated.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Download, error) {
	if err := validateURL(rawURL); err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	// Claim the buffer up front so that an allocation failure is reported before any network traffic.
	buf := make([]byte, f.maxBytes)

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSpace(rawURL), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	f.logger.Printf("fetching %v", rawURL)
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	n, err := io.ReadFull(resp.Body, buf)
	switch err {
	case nil, io.EOF, io.ErrUnexpectedEOF:
		// A short body is not an error; a full buffer may have more behind it.
	default:
		return nil, fmt.Errorf("fetch: read response: %w", err)
	}

	truncated := false
	if n == len(buf) {
		var probe [1]byte
		if m, _ := io.ReadFull(resp.Body, probe[:]); m > 0 {
			truncated = true
		}
	}

	contents := buf[:n]
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(contents)
	}

	f.logger.Printf("fetched %d bytes (%v)", n, contentType)
	if truncated {
		f.logger.Printf("warning: response exceeds %d bytes; keeping the first %d", f.maxBytes, n)
	}
	return &Download{Bytes: contents, ContentType: contentType, Truncated: truncated}, nil
}
