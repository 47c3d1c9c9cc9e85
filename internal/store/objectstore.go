package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	log "github.com/sirupsen/logrus"
)

const defaultSessionObject = "session.json"

// objectOpTimeout bounds object storage round trips.
const objectOpTimeout = 10 * time.Second

// ObjectStoreConfig captures the settings for an S3-compatible session store.
type ObjectStoreConfig struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	Prefix    string
	UseSSL    bool
	PathStyle bool
}

// ObjectStore persists the session document in S3-compatible object storage.
// The document is loaded once at construction and mirrored in memory; every
// mutation rewrites the object.
type ObjectStore struct {
	client *minio.Client
	cfg    ObjectStoreConfig
	object string

	mu     sync.Mutex
	values map[string]string
}

// NewObjectStore connects to the object storage endpoint and loads any
// existing session document.
func NewObjectStore(ctx context.Context, cfg ObjectStoreConfig) (*ObjectStore, error) {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.Bucket = strings.TrimSpace(cfg.Bucket)
	cfg.AccessKey = strings.TrimSpace(cfg.AccessKey)
	cfg.SecretKey = strings.TrimSpace(cfg.SecretKey)
	cfg.Prefix = strings.Trim(cfg.Prefix, "/")

	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("object store: endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("object store: bucket is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("object store: access and secret keys are required")
	}

	opts := &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	}
	if cfg.PathStyle {
		opts.BucketLookup = minio.BucketLookupPath
	}

	client, err := minio.New(cfg.Endpoint, opts)
	if err != nil {
		return nil, fmt.Errorf("object store: create client: %w", err)
	}

	object := defaultSessionObject
	if cfg.Prefix != "" {
		object = cfg.Prefix + "/" + defaultSessionObject
	}

	s := &ObjectStore{
		client: client,
		cfg:    cfg,
		object: object,
		values: make(map[string]string),
	}
	if err = s.load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// load pulls the session document, tolerating a missing object.
func (s *ObjectStore) load(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, objectOpTimeout)
	defer cancel()

	obj, err := s.client.GetObject(ctx, s.cfg.Bucket, s.object, minio.GetObjectOptions{})
	if err != nil {
		return fmt.Errorf("object store: get %s: %w", s.object, err)
	}
	defer func() {
		_ = obj.Close()
	}()

	data, err := io.ReadAll(obj)
	if err != nil {
		var respErr minio.ErrorResponse
		if errors.As(err, &respErr) && respErr.Code == "NoSuchKey" {
			return nil
		}
		return fmt.Errorf("object store: read %s: %w", s.object, err)
	}
	if len(data) == 0 {
		return nil
	}

	var values map[string]string
	if err = json.Unmarshal(data, &values); err != nil {
		log.Warnf("object store: %s is not a valid session document, starting fresh", s.object)
		return nil
	}
	s.values = values
	return nil
}

// Get returns the cached value for key.
func (s *ObjectStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.values[key]
	return value, ok
}

// Set stores value under key and rewrites the remote document.
func (s *ObjectStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	previous, had := s.values[key]
	s.values[key] = value
	if err := s.persistLocked(); err != nil {
		if had {
			s.values[key] = previous
		} else {
			delete(s.values, key)
		}
		return err
	}
	return nil
}

// Remove deletes key and rewrites the remote document. Removing an absent
// key is not an error.
func (s *ObjectStore) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	previous, had := s.values[key]
	if !had {
		return nil
	}
	delete(s.values, key)
	if err := s.persistLocked(); err != nil {
		s.values[key] = previous
		return err
	}
	return nil
}

func (s *ObjectStore) persistLocked() error {
	data, err := json.Marshal(s.values)
	if err != nil {
		return fmt.Errorf("object store: marshal session document: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), objectOpTimeout)
	defer cancel()

	_, err = s.client.PutObject(ctx, s.cfg.Bucket, s.object, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("object store: put %s: %w", s.object, err)
	}
	return nil
}
