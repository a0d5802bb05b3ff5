package queue

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/LeventeLantos/pacedsend/internal/fsutil"
	"github.com/LeventeLantos/pacedsend/internal/model"
)

var (
	ErrEmptyQueue      = errors.New("recipient queue is empty")
	ErrIndexOutOfRange = errors.New("recipient index out of range")
)

// Normalization controls how a recipient line is turned into an identifier.
type Normalization string

const (
	// Digits strips every non-digit character.
	Digits Normalization = "digits"
	// Raw keeps the trimmed line untouched.
	Raw Normalization = "raw"
)

func ParseNormalization(s string) (Normalization, error) {
	switch Normalization(strings.ToLower(strings.TrimSpace(s))) {
	case Digits, "":
		return Digits, nil
	case Raw:
		return Raw, nil
	default:
		return "", fmt.Errorf("unknown recipient normalization %q", s)
	}
}

// Parse returns one entry per non-blank, non-comment line. Lines that become
// empty after normalization are kept so indices match the source.
func Parse(text string, mode Normalization) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, Normalize(line, mode))
	}
	return out
}

func Normalize(entry string, mode Normalization) string {
	entry = strings.TrimSpace(entry)
	if mode == Raw {
		return entry
	}
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, entry)
}

// FileQueue persists recipients as plain text, one per line.
type FileQueue struct {
	path string
	mode Normalization
}

func NewFileQueue(path string, mode Normalization) *FileQueue {
	return &FileQueue{path: path, mode: mode}
}

func (q *FileQueue) Path() string { return q.path }

func (q *FileQueue) Load() ([]string, error) {
	raw, err := q.LoadRaw()
	if err != nil {
		return nil, err
	}
	entries := Parse(raw, q.mode)
	if len(entries) == 0 {
		return nil, ErrEmptyQueue
	}
	return entries, nil
}

// LoadRaw returns the file content as stored. A missing file reads as empty.
func (q *FileQueue) LoadRaw() (string, error) {
	b, err := os.ReadFile(q.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read recipients: %w", err)
	}
	return string(b), nil
}

func (q *FileQueue) Save(entries []string) error {
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(e)
		b.WriteByte('\n')
	}
	return q.SaveRaw(b.String())
}

func (q *FileQueue) SaveRaw(content string) error {
	return fsutil.WriteFileAtomic(q.path, []byte(content))
}

// RemoveAt drops entries[index]. When cur is non-nil and already past the
// removed entry, its LastIndex is pulled back by one so it keeps pointing at
// the same next recipient.
func RemoveAt(entries []string, index int, cur *model.Cursor) ([]string, error) {
	if index < 0 || index >= len(entries) {
		return entries, fmt.Errorf("%w: %d (len=%d)", ErrIndexOutOfRange, index, len(entries))
	}

	out := make([]string, 0, len(entries)-1)
	out = append(out, entries[:index]...)
	out = append(out, entries[index+1:]...)

	if cur != nil && cur.LastIndex > index {
		cur.LastIndex--
	}
	return out, nil
}
