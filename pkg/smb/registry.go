package smb

import (
	"sort"
	"sync"

	"github.com/ineffectivecoder/cifsgooser/pkg/metrics"
)

// Registry maps session names to live sessions. Names are unique: adding a
// name that is already present fails instead of replacing the entry.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	metrics  *metrics.Metrics
}

// NewRegistry creates an empty registry. m may be nil.
func NewRegistry(m *metrics.Metrics) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		metrics:  m,
	}
}

// Add registers s under name
func (r *Registry) Add(name string, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[name]; ok {
		return newError(CodeDuplicateSession, "session name already in use: "+name, nil)
	}
	r.sessions[name] = s
	r.metrics.SessionAdded()
	return nil
}

// Remove drops name. Removing an unknown name does nothing.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[name]; ok {
		delete(r.sessions, name)
		r.metrics.SessionRemoved()
	}
}

// Lookup returns the session registered under name
func (r *Registry) Lookup(name string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[name]
	if !ok {
		return nil, newError(CodeUnknownSession, "no session named "+name, nil)
	}
	return s, nil
}

// Names returns the registered names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.sessions))
	for n := range r.sessions {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered sessions
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
