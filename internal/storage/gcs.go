// Package storage fetches audio sources from Google Cloud Storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	gcs "cloud.google.com/go/storage"
	"github.com/rs/zerolog/log"

	"speech-transcribe-service/internal/models"
)

var (
	// ErrObjectNotFound is returned when the bucket or object does not exist.
	ErrObjectNotFound = errors.New("storage object not found")
	// ErrInvalidRef is returned for references without a bucket or object path.
	ErrInvalidRef = errors.New("invalid storage reference")
)

// ObjectRef names one object. An empty Bucket means the fetcher's default bucket.
type ObjectRef struct {
	Bucket string `json:"bucket"`
	Path   string `json:"path"`
}

// Resolve fills in the default bucket and normalizes the object path.
func (r ObjectRef) Resolve(defaultBucket string) (ObjectRef, error) {
	out := ObjectRef{
		Bucket: strings.TrimSpace(r.Bucket),
		Path:   strings.TrimLeft(strings.TrimSpace(r.Path), "/"),
	}
	if out.Bucket == "" {
		out.Bucket = defaultBucket
	}
	if out.Bucket == "" {
		return ObjectRef{}, fmt.Errorf("%w: bucket is required", ErrInvalidRef)
	}
	if out.Path == "" {
		return ObjectRef{}, fmt.Errorf("%w: path is required", ErrInvalidRef)
	}
	return out, nil
}

func (r ObjectRef) String() string {
	return "gs://" + r.Bucket + "/" + r.Path
}

// GCSFetcher opens bucket objects as AudioSources.
type GCSFetcher struct {
	client        *gcs.Client
	defaultBucket string
}

// NewGCSFetcher creates a fetcher using application default credentials.
func NewGCSFetcher(ctx context.Context, defaultBucket string) (*GCSFetcher, error) {
	c, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSFetcher{client: c, defaultBucket: defaultBucket}, nil
}

func (f *GCSFetcher) Close() error { return f.client.Close() }

// Open returns the object as an AudioSource. The caller closes the returned
// closer once the body has been consumed.
func (f *GCSFetcher) Open(ctx context.Context, ref ObjectRef) (models.AudioSource, io.Closer, error) {
	ref, err := ref.Resolve(f.defaultBucket)
	if err != nil {
		return models.AudioSource{}, nil, err
	}

	obj := f.client.Bucket(ref.Bucket).Object(ref.Path)
	attrs, err := obj.Attrs(ctx)
	if err != nil {
		return models.AudioSource{}, nil, classify(ref, err)
	}

	r, err := obj.NewReader(ctx)
	if err != nil {
		return models.AudioSource{}, nil, classify(ref, err)
	}

	log.Debug().
		Str("object", ref.String()).
		Int64("size", attrs.Size).
		Str("contentType", attrs.ContentType).
		Msg("Opened storage object")

	return models.AudioSource{
		Name:        path.Base(ref.Path),
		Size:        attrs.Size,
		ContentType: attrs.ContentType,
		Body:        r,
	}, r, nil
}

func classify(ref ObjectRef, err error) error {
	if errors.Is(err, gcs.ErrObjectNotExist) || errors.Is(err, gcs.ErrBucketNotExist) {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, ref)
	}
	return fmt.Errorf("read %s: %w", ref, err)
}
