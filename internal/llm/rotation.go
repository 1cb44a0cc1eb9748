package llm

import (
	"sync"

	"github.com/spherical/quizgen/internal/domain"
)

// RotationState hands out API keys round-robin. The orchestrator owns one
// instance per run and leases a key into each task before dispatch.
type RotationState struct {
	mu   sync.Mutex
	keys []string
	next int
}

// NewRotationState creates a rotation over keys. Empty keys are dropped.
func NewRotationState(keys []string) *RotationState {
	var clean []string
	for _, k := range keys {
		if k != "" {
			clean = append(clean, k)
		}
	}
	return &RotationState{keys: clean}
}

// Lease returns the next key.
func (r *RotationState) Lease() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.keys) == 0 {
		return "", domain.ConfigError("no API keys to rotate", nil)
	}
	key := r.keys[r.next%len(r.keys)]
	r.next++
	return key, nil
}

// Len returns the number of keys in rotation.
func (r *RotationState) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.keys)
}
