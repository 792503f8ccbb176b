// Package memory implements the repository ports and the transaction manager
// over in-process maps. Writes are serialized; a failed transaction is rolled
// back by replaying its undo log in reverse.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/garyjia/tutor-matching/internal/application/port"
	"github.com/garyjia/tutor-matching/internal/domain/entity"
)

type txKey struct{}

type tx struct {
	store *Store
	undo  []func()
}

// Store holds every entity table
type Store struct {
	writeMu sync.Mutex   // serializes transactions and standalone writes
	mu      sync.RWMutex // guards the maps

	requirements map[string]*entity.Requirement
	associations map[string]*entity.TutorAssociation
	demos        map[string]*entity.DemoSession
	classes      map[string]*entity.Class
	events       map[string]*entity.OutboxEvent
	eventOrder   []string
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		requirements: make(map[string]*entity.Requirement),
		associations: make(map[string]*entity.TutorAssociation),
		demos:        make(map[string]*entity.DemoSession),
		classes:      make(map[string]*entity.Class),
		events:       make(map[string]*entity.OutboxEvent),
	}
}

// WithTransaction implements port.TransactionManager
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if t := s.txFrom(ctx); t != nil {
		return fn(ctx)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	t := &tx{store: s}
	txCtx := context.WithValue(ctx, txKey{}, t)

	defer func() {
		if p := recover(); p != nil {
			t.rollback()
			panic(p)
		}
	}()

	if err := fn(txCtx); err != nil {
		t.rollback()
		return err
	}
	return nil
}

func (s *Store) txFrom(ctx context.Context) *tx {
	if t, ok := ctx.Value(txKey{}).(*tx); ok && t.store == s {
		return t
	}
	return nil
}

func (t *tx) rollback() {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

// write runs fn under the map lock. Inside a transaction fn's undo step is
// logged; outside one the write is serialized against running transactions.
func (s *Store) write(ctx context.Context, fn func() (undo func(), err error)) error {
	t := s.txFrom(ctx)
	if t == nil {
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	undo, err := fn()
	if err != nil {
		return err
	}
	if t != nil && undo != nil {
		t.undo = append(t.undo, undo)
	}
	return nil
}

func restore[T any](m map[string]*T, id string, prev *T, existed bool) func() {
	return func() {
		if existed {
			m[id] = prev
		} else {
			delete(m, id)
		}
	}
}

// swap replaces a stored record after checking its version
func swap[T any](m map[string]*T, id string, expected int64, version func(*T) int64, next *T) (func(), error) {
	prev, ok := m[id]
	if !ok {
		return nil, port.ErrNotFound
	}
	if version(prev) != expected {
		return nil, port.ErrVersionConflict
	}
	m[id] = next
	return restore(m, id, prev, true), nil
}

func uniqueErr(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", port.ErrUniqueViolation, fmt.Sprintf(format, args...))
}

// Requirements returns the requirement repository view
func (s *Store) Requirements() port.RequirementRepository { return &requirementRepo{s} }

// Associations returns the tutor association repository view
func (s *Store) Associations() port.AssociationRepository { return &associationRepo{s} }

// Demos returns the demo repository view
func (s *Store) Demos() port.DemoRepository { return &demoRepo{s} }

// Classes returns the class repository view
func (s *Store) Classes() port.ClassRepository { return &classRepo{s} }

// Outbox returns the outbox repository view
func (s *Store) Outbox() port.OutboxRepository { return &outboxRepo{s} }

var _ port.TransactionManager = (*Store)(nil)
