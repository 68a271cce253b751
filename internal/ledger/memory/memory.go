// Package memory implements an in-process ledger used by tests and by
// deployments without spreadsheet credentials.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cantiere/internal/ledger"
)

// ErrInjected is the failure returned while a forced-failure budget is
// armed; see FailNext.
var ErrInjected = errors.New("injected ledger failure")

type Store struct {
	mu      sync.Mutex
	ledgers map[string][][]string // ledgerID -> rows (header excluded)
	nextID  int

	failures map[string]int // operation -> remaining forced failures
	calls    map[string]int // operation -> total invocations
}

func New() *Store {
	return &Store{
		ledgers:  make(map[string][][]string),
		failures: make(map[string]int),
		calls:    make(map[string]int),
	}
}

// FailNext forces the next n invocations of operation ("create",
// "append", "update", "delete") to fail with ErrInjected.
func (s *Store) FailNext(operation string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[operation] = n
}

// Calls reports how many times operation has been invoked, failures
// included.
func (s *Store) Calls(operation string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[operation]
}

// Rows returns a copy of a ledger's rows.
func (s *Store) Rows(ledgerID string) [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := make([][]string, len(s.ledgers[ledgerID]))
	for i, r := range s.ledgers[ledgerID] {
		rows[i] = append([]string(nil), r...)
	}
	return rows
}

func (s *Store) shouldFail(operation string) bool {
	s.calls[operation]++
	if s.failures[operation] > 0 {
		s.failures[operation]--
		return true
	}
	return false
}

func (s *Store) CreateLedger(_ context.Context, ventureID, ventureName string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shouldFail("create") {
		return "", ErrInjected
	}
	if ventureID == "" || ventureName == "" {
		return "", errors.New("venture id and name required")
	}
	s.nextID++
	id := fmt.Sprintf("mem-ledger-%d", s.nextID)
	s.ledgers[id] = nil
	return id, nil
}

func (s *Store) AppendRow(_ context.Context, ledgerID string, row []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shouldFail("append") {
		return ErrInjected
	}
	if _, ok := s.ledgers[ledgerID]; !ok {
		return fmt.Errorf("unknown ledger %s", ledgerID)
	}
	if len(row) != ledger.Columns {
		return fmt.Errorf("expected %d columns, got %d", ledger.Columns, len(row))
	}
	s.ledgers[ledgerID] = append(s.ledgers[ledgerID], append([]string(nil), row...))
	return nil
}

func (s *Store) UpdateRowByKey(_ context.Context, ledgerID, key string, row []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shouldFail("update") {
		return ErrInjected
	}
	rows, ok := s.ledgers[ledgerID]
	if !ok {
		return fmt.Errorf("unknown ledger %s", ledgerID)
	}
	for i, r := range rows {
		if len(r) > 0 && r[0] == key {
			rows[i] = append([]string(nil), row...)
			return nil
		}
	}
	return fmt.Errorf("key %s: %w", key, ledger.ErrRowNotFound)
}

func (s *Store) DeleteRowByKey(_ context.Context, ledgerID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shouldFail("delete") {
		return ErrInjected
	}
	rows, ok := s.ledgers[ledgerID]
	if !ok {
		return fmt.Errorf("unknown ledger %s", ledgerID)
	}
	for i, r := range rows {
		if len(r) > 0 && r[0] == key {
			s.ledgers[ledgerID] = append(rows[:i], rows[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("key %s: %w", key, ledger.ErrRowNotFound)
}

var _ ledger.Client = (*Store)(nil)
