package auditlog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/LeventeLantos/pacedsend/internal/model"
)

const lineTimeLayout = "02/01/2006 15:04:05"

// FileSink appends "[date time] recipient - STATUS detail" lines.
type FileSink struct {
	path string
	loc  *time.Location
	mu   sync.Mutex
}

func NewFileSink(path string, loc *time.Location) *FileSink {
	if loc == nil {
		loc = time.Local
	}
	return &FileSink{path: path, loc: loc}
}

func (s *FileSink) Append(ctx context.Context, o model.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(FormatLine(o, s.loc)); err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

func FormatLine(o model.Outcome, loc *time.Location) string {
	line := fmt.Sprintf("[%s] %s - %s", o.At.In(loc).Format(lineTimeLayout), o.Recipient, o.Status)
	if d := strings.TrimSpace(o.Detail); d != "" {
		line += " " + strings.ReplaceAll(d, "\n", " ")
	}
	return line + "\n"
}
