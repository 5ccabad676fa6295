// Package attachment resolves attachment inputs (asset paths, URLs, local
// files, readers) and materializes them under the storage root.
package attachment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/starford/luzzle/internal/apperr"
)

// AssetsDir is the root-relative directory holding every attachment.
const AssetsDir = ".assets"

// DefaultMaxSize caps the size of a downloaded attachment.
const DefaultMaxSize = 50 << 20

// Value is a resolved attachment input: either an existing asset path or
// content still to be written.
type Value struct {
	// Path is set when the input already named an asset; nothing is read.
	Path string
	// Reader streams the content of a new attachment. The caller closes it.
	Reader io.ReadCloser
	// Name is the original file name or URL path, used for extension fallback.
	Name string
}

// IsAssetPath reports whether s is a root-relative attachment path. Empty,
// "." and ".." segments are rejected so the path cannot leave AssetsDir.
func IsAssetPath(s string) bool {
	s = strings.TrimPrefix(s, "/")
	if !strings.HasPrefix(s, AssetsDir+"/") {
		return false
	}
	for _, seg := range strings.Split(s, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return false
		}
	}
	return true
}

// Resolver turns attachment inputs into Values.
type Resolver struct {
	client    *http.Client
	maxSize   int64
	checkHost func(host string) error
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithHTTPClient replaces the download client.
func WithHTTPClient(c *http.Client) ResolverOption {
	return func(r *Resolver) { r.client = c }
}

// WithMaxSize sets the download size limit in bytes.
func WithMaxSize(n int64) ResolverOption {
	return func(r *Resolver) { r.maxSize = n }
}

// AllowPrivateHosts disables the loopback and metadata-address guard.
func AllowPrivateHosts() ResolverOption {
	return func(r *Resolver) { r.checkHost = func(string) error { return nil } }
}

// NewResolver returns a Resolver with a timeout-bounded HTTP client that
// follows at most five redirects.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{maxSize: DefaultMaxSize, checkHost: checkBlockedHost}
	r.client = &http.Client{
		Timeout: 30 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("too many redirects (max 5)")
			}
			return r.checkHost(req.URL.Hostname())
		},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// MakeValue resolves input for the attachment field named field. Accepted
// inputs are an existing asset path (returned unchanged), an http(s) URL, a
// base64 data URI, a local file path, or an io.Reader. Content is never
// inspected here.
func (r *Resolver) MakeValue(ctx context.Context, field string, input any) (Value, error) {
	switch v := input.(type) {
	case string:
		switch {
		case IsAssetPath(v):
			return Value{Path: strings.TrimPrefix(v, "/")}, nil
		case strings.HasPrefix(v, "http://"), strings.HasPrefix(v, "https://"):
			return r.fetch(ctx, v)
		case IsDataURI(v):
			return r.decodeDataURI(field, v)
		default:
			return openLocal(v)
		}
	case io.ReadCloser:
		return Value{Reader: v}, nil
	case io.Reader:
		return Value{Reader: io.NopCloser(v)}, nil
	}
	return Value{}, &apperr.ValidationError{Errors: []apperr.FieldError{{
		Field:   field,
		Message: fmt.Sprintf("unsupported attachment input %T", input),
	}}}
}

func openLocal(p string) (Value, error) {
	info, err := os.Stat(p)
	if err != nil {
		return Value{}, fmt.Errorf("attachment: %s: %w", p, apperr.ErrNotFound)
	}
	if info.IsDir() {
		return Value{}, fmt.Errorf("attachment: %s is a directory: %w", p, apperr.ErrNotFound)
	}
	f, err := os.Open(p)
	if err != nil {
		return Value{}, fmt.Errorf("attachment: open %s: %w", p, err)
	}
	return Value{Reader: f, Name: path.Base(p)}, nil
}

func (r *Resolver) fetch(ctx context.Context, rawURL string) (Value, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return Value{}, &apperr.FetchError{URL: rawURL, Err: err}
	}
	if err := r.checkHost(parsed.Hostname()); err != nil {
		return Value{}, &apperr.FetchError{URL: rawURL, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Value{}, &apperr.FetchError{URL: rawURL, Err: err}
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return Value{}, &apperr.FetchError{URL: rawURL, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return Value{}, &apperr.FetchError{URL: rawURL, Status: resp.StatusCode}
	}
	body := resp.Body
	if r.maxSize > 0 {
		body = http.MaxBytesReader(nil, resp.Body, r.maxSize)
	}
	return Value{Reader: body, Name: path.Base(parsed.Path)}, nil
}

// checkBlockedHost rejects loopback and cloud metadata addresses.
func checkBlockedHost(host string) error {
	if host == "metadata.google.internal" {
		return fmt.Errorf("blocked host: %s", host)
	}

	ip := net.ParseIP(host)
	if ip == nil {
		ips, lookupErr := net.LookupIP(host)
		if lookupErr != nil || len(ips) == 0 {
			return nil //nolint:nilerr // let http.Client handle DNS failures
		}
		ip = ips[0]
	}

	if ip.IsLoopback() {
		return fmt.Errorf("blocked host: loopback address %s", host)
	}
	if ip.Equal(net.ParseIP("169.254.169.254")) {
		return fmt.Errorf("blocked host: cloud metadata address %s", host)
	}
	return nil
}

// IsTooLarge reports whether err came from exceeding the download limit.
func IsTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}
