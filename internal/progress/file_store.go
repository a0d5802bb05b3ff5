package progress

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/LeventeLantos/pacedsend/internal/fsutil"
	"github.com/LeventeLantos/pacedsend/internal/model"
)

type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load(ctx context.Context) (model.Cursor, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return model.Cursor{}, nil
	}
	if err != nil {
		return model.Cursor{}, fmt.Errorf("read progress file: %w", err)
	}
	return decodeCursor(b, "file"), nil
}

func (s *FileStore) Save(ctx context.Context, c model.Cursor) error {
	b, err := encodeCursor(c)
	if err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(s.path, b); err != nil {
		return fmt.Errorf("write progress file: %w", err)
	}
	return nil
}
