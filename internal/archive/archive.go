// Package archive writes retired raw events to cold storage before they
// are deleted from the event log.
package archive

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vipinuengage/funnel-system/internal/event"
)

// Sink receives one run's raw events. Deletion from the event log must
// not proceed until every sink's Flush has returned.
type Sink interface {
	Write(ev event.Event) error
	// Flush confirms everything written so far is durable.
	Flush() error
	Close() error
	// Name identifies the artifact, e.g. its file path.
	Name() string
}

// Opener creates the per-run sinks: always the njson file artifact, plus
// the ClickHouse cold table when configured.
type Opener struct {
	Dir        string
	ClickHouse *ClickHouseArchive // optional
	nowMillis  func() int64
}

func NewOpener(dir string, ch *ClickHouseArchive) *Opener {
	return &Opener{
		Dir:        dir,
		ClickHouse: ch,
		nowMillis:  func() int64 { return time.Now().UnixMilli() },
	}
}

func (o *Opener) Open(date string) ([]Sink, error) {
	file, err := NewFileSink(o.Dir, date, o.nowMillis())
	if err != nil {
		return nil, err
	}
	sinks := []Sink{file}
	if o.ClickHouse != nil {
		sinks = append(sinks, o.ClickHouse.NewSink())
	}
	return sinks, nil
}

// FileSink writes newline-delimited JSON, one raw event per line. The
// artifact name is deterministic per aggregated date and run instant.
type FileSink struct {
	path string
	f    *os.File
	bw   *bufio.Writer
}

func NewFileSink(dir, date string, runMillis int64) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("events-%s-%d.njson", date, runMillis))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create archive file: %w", err)
	}
	return &FileSink{path: path, f: f, bw: bufio.NewWriter(f)}, nil
}

func (s *FileSink) Write(ev event.Event) error {
	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal archived event: %w", err)
	}
	if _, err := s.bw.Write(line); err != nil {
		return err
	}
	return s.bw.WriteByte('\n')
}

// Flush drains the buffer and fsyncs so a confirmed flush survives a crash.
func (s *FileSink) Flush() error {
	if err := s.bw.Flush(); err != nil {
		return err
	}
	return s.f.Sync()
}

func (s *FileSink) Close() error {
	return s.f.Close()
}

func (s *FileSink) Name() string {
	return s.path
}
