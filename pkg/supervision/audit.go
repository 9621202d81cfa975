package supervision

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"sync"

	"github.com/runweave/runweave/pkg/models"
)

// MemoryAuditSink keeps decisions in memory. Intended for tests and
// development.
type MemoryAuditSink struct {
	mu        sync.Mutex
	decisions []models.SupervisionDecision
	fail      error
}

// NewMemoryAuditSink creates an in-memory audit sink.
func NewMemoryAuditSink() *MemoryAuditSink {
	return &MemoryAuditSink{}
}

func (s *MemoryAuditSink) Record(_ context.Context, decision models.SupervisionDecision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fail != nil {
		return s.fail
	}

	s.decisions = append(s.decisions, decision)

	return nil
}

// Decisions returns a copy of everything recorded so far.
func (s *MemoryAuditSink) Decisions() []models.SupervisionDecision {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]models.SupervisionDecision(nil), s.decisions...)
}

// FailWith makes every subsequent Record return err, simulating an
// unreachable sink.
func (s *MemoryAuditSink) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fail = err
}

// FileAuditSink appends decisions as JSON lines to a decision log on disk.
type FileAuditSink struct {
	mu       sync.Mutex
	filePath string
}

// NewFileAuditSink creates a file-backed audit sink rooted at dir.
func NewFileAuditSink(dir string) (*FileAuditSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}

	return &FileAuditSink{filePath: path.Join(dir, "supervision_decisions.jsonl")}, nil
}

func (s *FileAuditSink) Record(_ context.Context, decision models.SupervisionDecision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	line, err := json.Marshal(decision)
	if err != nil {
		return fmt.Errorf("failed to marshal decision: %w", err)
	}

	file, err := os.OpenFile(s.filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open decision log: %w", err)
	}
	defer func() { _ = file.Close() }()

	if _, err := file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append decision: %w", err)
	}

	return nil
}
