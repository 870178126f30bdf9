package processor

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/madcok-co/consumerd/internal/apierr"
)

// FileSink appends one line per record to config.file_path, creating
// the parent directory if absent (§4.A). It flushes on every record so
// a consumer stop never loses an already-acknowledged write.
type FileSink struct {
	id   string
	mu   sync.Mutex
	file *os.File
	w    *bufio.Writer
}

// NewFileSink builds the file_sink Processor variant.
func NewFileSink(id string, config map[string]any) (Processor, error) {
	path, ok := config["file_path"].(string)
	if !ok || path == "" {
		return nil, apierr.New(apierr.BadConfig, "file_sink: config.file_path is required")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, apierr.Wrap(apierr.BadConfig, "file_sink: create parent directory", err)
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, apierr.Wrap(apierr.BadConfig, "file_sink: open "+path, err)
	}

	return &FileSink{id: id, file: f, w: bufio.NewWriter(f)}, nil
}

func (p *FileSink) ID() string { return p.id }

func (p *FileSink) Process(ctx context.Context, rec Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	line := fmt.Sprintf("%s\t%d\t%d\t%s\t%s\n", rec.Topic, rec.Partition, rec.Offset, rec.Key, rec.Value)
	if _, err := p.w.WriteString(line); err != nil {
		return fmt.Errorf("file_sink: write: %w", err)
	}
	if err := p.w.Flush(); err != nil {
		return fmt.Errorf("file_sink: flush: %w", err)
	}
	return nil
}

func (p *FileSink) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.w.Flush(); err != nil {
		_ = p.file.Close()
		return err
	}
	return p.file.Close()
}

var _ Processor = (*FileSink)(nil)
