package review

import (
	"context"
	"sync"
)

// MemoryLedger is a process-local Ledger.
type MemoryLedger struct {
	mu      sync.Mutex
	applied map[string]struct{}
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{applied: make(map[string]struct{})}
}

func (l *MemoryLedger) Applied(_ context.Context, documentID, suggestionID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.applied[documentID+"\x00"+suggestionID]
	return ok, nil
}

func (l *MemoryLedger) MarkApplied(_ context.Context, documentID, suggestionID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.applied[documentID+"\x00"+suggestionID] = struct{}{}
	return nil
}
