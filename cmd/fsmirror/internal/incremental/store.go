package incremental

import (
	"fmt"
	"sync"
	"time"

	"github.com/albertocavalcante/fsmirror/pkg/logical"
	"github.com/albertocavalcante/fsmirror/pkg/util"
)

// Baseline is the output snapshot recorded after a unit of work last ran.
type Baseline struct {
	Outputs   *logical.Collection
	UpdatedAt time.Time
}

// Store defines the interface for baseline storage.
type Store interface {
	Load(name string) (*Baseline, bool)
	Save(name string, outputs *logical.Collection) error
	Exists(name string) bool
	Clear(name string)
	Names() []string
}

// MemoryStore implements Store for the life of the process.
type MemoryStore struct {
	mu        sync.RWMutex
	baselines map[string]*Baseline
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{baselines: make(map[string]*Baseline)}
}

// Load returns the baseline recorded for name.
func (s *MemoryStore) Load(name string) (*Baseline, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.baselines[name]
	return b, ok
}

// Save records outputs as the baseline for name, replacing any previous one.
func (s *MemoryStore) Save(name string, outputs *logical.Collection) error {
	if outputs == nil {
		return fmt.Errorf("cannot save nil outputs for %q", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baselines[name] = &Baseline{Outputs: outputs, UpdatedAt: time.Now()}
	return nil
}

// Exists returns true if a baseline is recorded for name.
func (s *MemoryStore) Exists(name string) bool {
	_, ok := s.Load(name)
	return ok
}

// Clear forgets the baseline for name.
func (s *MemoryStore) Clear(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.baselines, name)
}

// Names returns the recorded unit-of-work names in sorted order.
func (s *MemoryStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return util.SortedKeys(s.baselines)
}
