package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSStore keeps audio in a JetStream object store bucket so multiple
// readers can fetch it without sharing a filesystem.
type NATSStore struct {
	conn   *nats.Conn
	bucket string
	store  nats.ObjectStore
}

// NewNATSStore connects to the server and binds the bucket, creating it on
// first use.
func NewNATSStore(url, bucket string) (*NATSStore, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats at %s: %w", url, err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open jetstream context: %w", err)
	}

	store, err := js.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucket,
		Description: fmt.Sprintf("Soundscape audio for the %s bucket.", bucket),
		Storage:     nats.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		// Bucket already exists: bind to it instead.
		if errors.Is(err, jetstream.ErrBucketExists) {
			store, err = js.ObjectStore(bucket)
		}
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to open object store bucket %q: %w", bucket, err)
		}
	}

	return &NATSStore{conn: conn, bucket: bucket, store: store}, nil
}

// Name identifies the backend.
func (s *NATSStore) Name() string {
	return "nats"
}

// Put stores the object and returns a nats:// URL naming bucket and key.
func (s *NATSStore) Put(ctx context.Context, key string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := validateKey(key); err != nil {
		return "", err
	}

	_, err := s.store.Put(&nats.ObjectMeta{Name: key}, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to put object %q in bucket %q: %w", key, s.bucket, err)
	}

	return "nats://" + s.bucket + "/" + key, nil
}

// Get retrieves the object stored under key.
func (s *NATSStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateKey(key); err != nil {
		return nil, err
	}

	obj, err := s.store.Get(key)
	if err != nil {
		if errors.Is(err, nats.ErrObjectNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to get object %q from bucket %q: %w", key, s.bucket, err)
	}

	data, readErr := io.ReadAll(obj)
	closeErr := obj.Close()
	if readErr != nil {
		return nil, fmt.Errorf("failed to read object %q: %w", key, readErr)
	}
	if closeErr != nil {
		return data, fmt.Errorf("failed to close object %q: %w", key, closeErr)
	}
	return data, nil
}

// Close drops the server connection.
func (s *NATSStore) Close() {
	s.conn.Close()
}

var _ ObjectStore = (*NATSStore)(nil)
