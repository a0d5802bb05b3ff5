package progress

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/LeventeLantos/pacedsend/internal/model"
)

var (
	bucketProgress = []byte("progress")
	keyCursor      = []byte("cursor")
)

// BoltStore keeps the cursor in an embedded bbolt database.
type BoltStore struct {
	db *bolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketProgress)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create bucket %s: %w", bucketProgress, err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Load(ctx context.Context) (model.Cursor, error) {
	var raw []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketProgress).Get(keyCursor); v != nil {
			raw = append([]byte{}, v...)
		}
		return nil
	})
	if err != nil {
		return model.Cursor{}, fmt.Errorf("read progress: %w", err)
	}
	if raw == nil {
		return model.Cursor{}, nil
	}
	return decodeCursor(raw, "bolt"), nil
}

func (s *BoltStore) Save(ctx context.Context, c model.Cursor) error {
	b, err := encodeCursor(c)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketProgress).Put(keyCursor, b)
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
