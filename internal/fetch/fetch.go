// Package fetch retrieves score bytes by reference: a local path, an
// http(s) URL or an s3://bucket/key object.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/rs/zerolog/log"
)

// MaxBytes bounds a fetched score.
const MaxBytes = 32 << 20

var (
	ErrEmptyRef    = errors.New("fetch: empty reference")
	ErrUnsupported = errors.New("fetch: unsupported scheme")
	ErrTooLarge    = errors.New("fetch: resource too large")
)

// Resource is a fetched score.
type Resource struct {
	Name string
	Data []byte
}

type objectGetter interface {
	GetObjectWithContext(aws.Context, *s3.GetObjectInput, ...request.Option) (*s3.GetObjectOutput, error)
}

type Options struct {
	Timeout    time.Duration
	S3Region   string
	S3Endpoint string // for a local stand-in
}

type Fetcher struct {
	client *http.Client
	opts   Options

	once  sync.Once
	s3    objectGetter
	s3Err error
}

func New(o Options) *Fetcher {
	if o.Timeout <= 0 {
		o.Timeout = 15 * time.Second
	}
	return &Fetcher{client: &http.Client{Timeout: o.Timeout}, opts: o}
}

// Fetch resolves ref. Any failure comes back as one error and no data.
func (f *Fetcher) Fetch(ctx context.Context, ref string) (Resource, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Resource{}, ErrEmptyRef
	}
	u, err := url.Parse(ref)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// plain path, including windows drive letters
		return f.file(ref)
	}
	switch u.Scheme {
	case "file":
		return f.file(u.Path)
	case "http", "https":
		return f.http(ctx, u)
	case "s3":
		return f.object(ctx, u)
	}
	return Resource{}, fmt.Errorf("%w: %q", ErrUnsupported, u.Scheme)
}

func (f *Fetcher) file(p string) (Resource, error) {
	st, err := os.Stat(p)
	if err != nil {
		return Resource{}, fmt.Errorf("fetch: %w", err)
	}
	if st.Size() > MaxBytes {
		return Resource{}, fmt.Errorf("%w: %s", ErrTooLarge, p)
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return Resource{}, fmt.Errorf("fetch: %w", err)
	}
	return Resource{Name: path.Base(strings.ReplaceAll(p, "\\", "/")), Data: b}, nil
}

func (f *Fetcher) http(ctx context.Context, u *url.URL) (Resource, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Resource{}, fmt.Errorf("fetch: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return Resource{}, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Resource{}, fmt.Errorf("fetch: %s: %s", u.Redacted(), resp.Status)
	}
	b, err := readAll(resp.Body)
	if err != nil {
		return Resource{}, err
	}
	log.Debug().Str("url", u.Redacted()).Int("bytes", len(b)).Msg("fetched score")
	return Resource{Name: nameOf(u.Path, u.Host), Data: b}, nil
}

func (f *Fetcher) object(ctx context.Context, u *url.URL) (Resource, error) {
	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return Resource{}, fmt.Errorf("fetch: s3 reference needs bucket and key: %q", u.String())
	}
	cl, err := f.s3Client()
	if err != nil {
		return Resource{}, err
	}
	out, err := cl.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(u.Host),
		Key:    aws.String(key),
	})
	if err != nil {
		return Resource{}, fmt.Errorf("fetch: s3://%s/%s: %w", u.Host, key, err)
	}
	defer out.Body.Close()
	b, err := readAll(out.Body)
	if err != nil {
		return Resource{}, err
	}
	return Resource{Name: nameOf(key, u.Host), Data: b}, nil
}

func (f *Fetcher) s3Client() (objectGetter, error) {
	f.once.Do(func() {
		if f.s3 != nil {
			return
		}
		cfg := &aws.Config{}
		if f.opts.S3Region != "" {
			cfg.Region = aws.String(f.opts.S3Region)
		}
		if f.opts.S3Endpoint != "" {
			cfg.Endpoint = aws.String(f.opts.S3Endpoint)
			cfg.S3ForcePathStyle = aws.Bool(true)
		}
		sess, err := session.NewSession(cfg)
		if err != nil {
			f.s3Err = fmt.Errorf("fetch: s3 session: %w", err)
			return
		}
		f.s3 = s3.New(sess)
	})
	return f.s3, f.s3Err
}

func readAll(r io.Reader) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("fetch: read: %w", err)
	}
	if len(b) > MaxBytes {
		return nil, ErrTooLarge
	}
	return b, nil
}

func nameOf(p, fallback string) string {
	if b := path.Base(p); b != "." && b != "/" && b != "" {
		return b
	}
	return fallback
}
