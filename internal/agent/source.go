package agent

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os/exec"
)

const (
	// DefaultLineBuffer is the default channel buffer size for journal lines.
	DefaultLineBuffer = 1024

	// DefaultMaxLineSize is the default maximum size (in bytes) of a single journal line.
	DefaultMaxLineSize = 1024 * 1024 // 1MB
)

// JournalArgs follows new entries only, one JSON object per line.
var JournalArgs = []string{"--follow", "--output=json", "--lines=0"}

// LineSource produces raw journal lines until stopped or exhausted.
type LineSource interface {
	Lines() <-chan []byte
	Stop()
	Name() string
}

// ReaderSource streams newline-delimited entries from an io.Reader.
type ReaderSource struct {
	ch     chan []byte
	done   chan struct{}
	cancel context.CancelFunc
	name   string
}

// NewReaderSource starts a goroutine reading r. The Lines channel closes on
// EOF, on a read error or once Stop is called.
func NewReaderSource(ctx context.Context, name string, r io.Reader, maxLineSize int) *ReaderSource {
	if maxLineSize <= 0 {
		maxLineSize = DefaultMaxLineSize
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &ReaderSource{
		ch:     make(chan []byte, DefaultLineBuffer),
		done:   make(chan struct{}),
		cancel: cancel,
		name:   name,
	}
	go s.read(ctx, r, maxLineSize)
	return s
}

func (s *ReaderSource) read(ctx context.Context, r io.Reader, maxLineSize int) {
	defer close(s.done)
	defer close(s.ch)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		// Scanner reuses its buffer between calls.
		cp := make([]byte, len(line))
		copy(cp, line)
		select {
		case s.ch <- cp:
		case <-ctx.Done():
			return
		}
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			log.Printf("agent: %s line exceeded max size (%d bytes), stopping source", s.name, maxLineSize)
			return
		}
		log.Printf("agent: %s scanner error: %v", s.name, err)
	}
}

func (s *ReaderSource) Lines() <-chan []byte { return s.ch }
func (s *ReaderSource) Stop()                { s.cancel() }
func (s *ReaderSource) Name() string         { return s.name }

// JournalSource runs journalctl and reads its JSON output.
type JournalSource struct {
	*ReaderSource
	cmd *exec.Cmd
}

// StartJournal launches the journalctl binary at path (looked up in PATH when
// bare) and follows its output until ctx is cancelled or Stop is called.
func StartJournal(ctx context.Context, path string, maxLineSize int) (*JournalSource, error) {
	if path == "" {
		path = "journalctl"
	}
	cmd := exec.CommandContext(ctx, path, JournalArgs...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("journalctl stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start journalctl: %w", err)
	}

	src := &JournalSource{
		ReaderSource: NewReaderSource(ctx, "journalctl", stdout, maxLineSize),
		cmd:          cmd,
	}
	go func() {
		// Wait closes the pipe, so it must not run before reads finish.
		<-src.done
		if err := cmd.Wait(); err != nil && ctx.Err() == nil {
			log.Printf("agent: journalctl exited: %v", err)
		}
	}()
	return src, nil
}

// Stop stops reading and kills journalctl.
func (s *JournalSource) Stop() {
	s.ReaderSource.Stop()
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
}
