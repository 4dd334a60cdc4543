// Package archive fetches and stores the raw bytes of POM documents
// referenced by a relationship's PomLocation, grounded in the
// teacher's artifact.S3Store (bucket-ensure-once, PutObject/GetObject,
// ErrNotFound translation).
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrNotFound is returned when a requested POM document was never
// archived.
var ErrNotFound = errors.New("archive: pom not found")

// Config configures the S3-compatible backing store.
type Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Store archives POM document bytes keyed by (declaring GAV, pom
// location).
type Store struct {
	client     *minio.Client
	bucketName string
	region     string
	httpClient *http.Client

	initOnce sync.Once
	initErr  error
}

// New validates cfg and returns a ready Store. The bucket is created
// lazily on first use, not here.
func New(cfg Config) (*Store, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("archive: s3 endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("archive: s3 access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("archive: s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("archive: init s3 client: %w", err)
	}

	return &Store{
		client:     client,
		bucketName: bucket,
		region:     region,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (s *Store) ensureBucket(ctx context.Context) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("archive: store is nil")
	}
	s.initOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucketName)
		if err != nil {
			s.initErr = err
			return
		}
		if exists {
			return
		}
		s.initErr = s.client.MakeBucket(ctx, s.bucketName, minio.MakeBucketOptions{Region: s.region})
	})
	return s.initErr
}

// Fetch downloads pomLocation over HTTP and stores the bytes under
// (declaringGAV, pomLocation), returning the stored byte count.
func (s *Store) Fetch(ctx context.Context, declaringGAV, pomLocation string) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("archive: store is nil")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pomLocation, nil)
	if err != nil {
		return 0, fmt.Errorf("archive: build request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("archive: fetch %s: %w", pomLocation, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("archive: fetch %s: status %d", pomLocation, resp.StatusCode)
	}
	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("archive: read response body: %w", err)
	}
	if err := s.Put(ctx, declaringGAV, pomLocation, content); err != nil {
		return 0, err
	}
	return len(content), nil
}

// Put stores content under (declaringGAV, pomLocation), overwriting
// any prior archived document.
func (s *Store) Put(ctx context.Context, declaringGAV, pomLocation string, content []byte) error {
	if s == nil {
		return fmt.Errorf("archive: store is nil")
	}
	if err := s.ensureBucket(ctx); err != nil {
		return fmt.Errorf("archive: ensure bucket: %w", err)
	}
	if content == nil {
		content = []byte{}
	}
	key := objectKey(declaringGAV, pomLocation)
	_, err := s.client.PutObject(ctx, s.bucketName, key, bytes.NewReader(content), int64(len(content)), minio.PutObjectOptions{
		ContentType: "application/xml",
	})
	if err != nil {
		return fmt.Errorf("archive: put %s: %w", key, err)
	}
	return nil
}

// Get returns the previously archived bytes for (declaringGAV,
// pomLocation), or ErrNotFound if none were ever stored.
func (s *Store) Get(ctx context.Context, declaringGAV, pomLocation string) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("archive: store is nil")
	}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("archive: ensure bucket: %w", err)
	}
	key := objectKey(declaringGAV, pomLocation)
	obj, err := s.client.GetObject(ctx, s.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("archive: get %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" || errResp.Code == "NoSuchBucket" {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("archive: read %s: %w", key, err)
	}
	return data, nil
}

func objectKey(declaringGAV, pomLocation string) string {
	normalized := strings.TrimSpace(strings.ReplaceAll(declaringGAV, ":", "/"))
	return normalized + "/" + strings.TrimLeft(strings.TrimSpace(pomLocation), "/")
}
