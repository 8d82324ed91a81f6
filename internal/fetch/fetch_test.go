package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "etude.musicxml")
	require.NoError(t, os.WriteFile(p, []byte("<score-partwise/>"), 0644))

	f := New(Options{})
	r, err := f.Fetch(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "etude.musicxml", r.Name)
	assert.Equal(t, "<score-partwise/>", string(r.Data))

	r, err = f.Fetch(context.Background(), "file://"+p)
	require.NoError(t, err)
	assert.Equal(t, "etude.musicxml", r.Name)

	_, err = f.Fetch(context.Background(), filepath.Join(t.TempDir(), "nope.xml"))
	assert.Error(t, err)
	_, err = f.Fetch(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrEmptyRef)
	_, err = f.Fetch(context.Background(), "ftp://host/x.xml")
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestFetchHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.xml" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, "<score-partwise/>")
	}))
	defer srv.Close()

	f := New(Options{})
	r, err := f.Fetch(context.Background(), srv.URL+"/scores/minuet.xml")
	require.NoError(t, err)
	assert.Equal(t, "minuet.xml", r.Name)
	assert.Equal(t, "<score-partwise/>", string(r.Data))

	_, err = f.Fetch(context.Background(), srv.URL+"/missing.xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestFetchHTTPCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(Options{}).Fetch(ctx, srv.URL)
	assert.True(t, errors.Is(err, context.Canceled))
}

type fakeS3 struct {
	bucket, key string
	err         error
}

func (f *fakeS3) GetObjectWithContext(_ aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.bucket, f.key = aws.StringValue(in.Bucket), aws.StringValue(in.Key)
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader("PK\x03\x04"))}, nil
}

func TestFetchS3(t *testing.T) {
	fake := &fakeS3{}
	f := New(Options{})
	f.s3 = fake

	r, err := f.Fetch(context.Background(), "s3://scores/bach/invention1.mxl")
	require.NoError(t, err)
	assert.Equal(t, "scores", fake.bucket)
	assert.Equal(t, "bach/invention1.mxl", fake.key)
	assert.Equal(t, "invention1.mxl", r.Name)

	_, err = f.Fetch(context.Background(), "s3://scores")
	assert.Error(t, err)

	fake.err = errors.New("NoSuchKey")
	_, err = f.Fetch(context.Background(), "s3://scores/x.xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NoSuchKey")
}

func TestReadAllLimit(t *testing.T) {
	_, err := readAll(io.LimitReader(zeros{}, MaxBytes+10))
	assert.ErrorIs(t, err, ErrTooLarge)
}

type zeros struct{}

func (zeros) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}
