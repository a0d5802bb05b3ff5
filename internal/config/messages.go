package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/LeventeLantos/pacedsend/internal/fsutil"
	"github.com/LeventeLantos/pacedsend/internal/model"
)

// LoadMessages reads the message set. A missing file yields an empty set;
// starting a run with it fails with model.ErrNoMessage.
func LoadMessages(path string) (model.MessageSet, error) {
	var set model.MessageSet

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return set, nil
	}
	if err != nil {
		return set, fmt.Errorf("read messages: %w", err)
	}

	if err := yaml.Unmarshal(data, &set); err != nil {
		return set, fmt.Errorf("parse messages %s: %w", path, err)
	}
	return set, nil
}

func SaveMessages(path string, set model.MessageSet) error {
	if set.Variants == nil {
		set.Variants = []string{}
	}
	data, err := yaml.Marshal(set)
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}
	return fsutil.WriteFileAtomic(path, data)
}
