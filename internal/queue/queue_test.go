package queue

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/LeventeLantos/pacedsend/internal/model"
)

func TestParse(t *testing.T) {
	t.Parallel()

	input := "# leads\n\n+55 (11) 99999-8888\n  5511888887777  \n#5511000000000\nabc\n"

	cases := []struct {
		name string
		mode Normalization
		want []string
	}{
		{"digits", Digits, []string{"5511999998888", "5511888887777", ""}},
		{"raw", Raw, []string{"+55 (11) 99999-8888", "5511888887777", "abc"}},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := Parse(input, tc.mode)
			if len(got) != len(tc.want) {
				t.Fatalf("expected %d entries, got %d: %q", len(tc.want), len(got), got)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("entry %d: expected %q, got %q", i, tc.want[i], got[i])
				}
			}
		})
	}
}

func TestParseNormalization(t *testing.T) {
	t.Parallel()

	if m, err := ParseNormalization(""); err != nil || m != Digits {
		t.Fatalf("expected default digits, got %q %v", m, err)
	}
	if m, err := ParseNormalization("RAW"); err != nil || m != Raw {
		t.Fatalf("expected raw, got %q %v", m, err)
	}
	if _, err := ParseNormalization("emoji"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestFileQueue_LoadEmpty(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	missing := NewFileQueue(filepath.Join(dir, "missing.txt"), Digits)
	if _, err := missing.Load(); !errors.Is(err, ErrEmptyQueue) {
		t.Fatalf("expected ErrEmptyQueue for missing file, got %v", err)
	}

	path := filepath.Join(dir, "numeros.txt")
	if err := os.WriteFile(path, []byte("# only comments\n\n   \n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := NewFileQueue(path, Digits).Load(); !errors.Is(err, ErrEmptyQueue) {
		t.Fatalf("expected ErrEmptyQueue, got %v", err)
	}
}

func TestFileQueue_SaveThenLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sub", "numeros.txt")
	q := NewFileQueue(path, Digits)

	if err := q.Save([]string{"5511999998888", "5511888887777"}); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	got, err := q.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(got) != 2 || got[0] != "5511999998888" || got[1] != "5511888887777" {
		t.Fatalf("unexpected entries: %q", got)
	}

	raw, err := q.LoadRaw()
	if err != nil {
		t.Fatalf("LoadRaw() error: %v", err)
	}
	if raw != "5511999998888\n5511888887777\n" {
		t.Fatalf("unexpected raw content: %q", raw)
	}

	leftovers, _ := filepath.Glob(filepath.Join(filepath.Dir(path), ".numeros.txt.tmp-*"))
	if len(leftovers) != 0 {
		t.Fatalf("temp files left behind: %v", leftovers)
	}
}

func TestRemoveAt_AdjustsCursor(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		index     int
		lastIndex int
		wantIndex int
	}{
		{"removed before cursor", 0, 2, 1},
		{"removed right before cursor", 1, 2, 1},
		{"removed at cursor", 2, 2, 2},
		{"removed after cursor", 3, 2, 2},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			entries := []string{"a", "b", "c", "d"}
			cur := &model.Cursor{LastIndex: tc.lastIndex}

			out, err := RemoveAt(entries, tc.index, cur)
			if err != nil {
				t.Fatalf("RemoveAt() error: %v", err)
			}
			if len(out) != 3 {
				t.Fatalf("expected 3 entries, got %q", out)
			}
			if cur.LastIndex != tc.wantIndex {
				t.Fatalf("expected LastIndex %d, got %d", tc.wantIndex, cur.LastIndex)
			}
			if entries[0] != "a" || len(entries) != 4 {
				t.Fatalf("input slice was mutated: %q", entries)
			}
		})
	}
}

func TestRemoveAt_OutOfRange(t *testing.T) {
	t.Parallel()

	for _, idx := range []int{-1, 2} {
		if _, err := RemoveAt([]string{"a", "b"}, idx, nil); !errors.Is(err, ErrIndexOutOfRange) {
			t.Fatalf("index %d: expected ErrIndexOutOfRange, got %v", idx, err)
		}
	}
}
