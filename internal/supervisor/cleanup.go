package supervisor

import (
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog/log"
)

// CleanupManager runs registered callbacks once, in registration order, and
// aggregates their errors.
type CleanupManager struct {
	mu   sync.Mutex
	fns  []cleanupFn
	done bool
	err  error
}

type cleanupFn struct {
	name string
	fn   func() error
}

func NewCleanupManager() *CleanupManager {
	return &CleanupManager{}
}

// RegisterCallback adds a named cleanup step. Steps registered after Cleanup
// has run are dropped.
func (cm *CleanupManager) RegisterCallback(name string, fn func() error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.done {
		log.Error().Str("step", name).Msg("supervisor.CleanupManager RegisterCallback called after Cleanup")
		return
	}
	cm.fns = append(cm.fns, cleanupFn{name: name, fn: fn})
}

// Cleanup runs every step even when earlier steps fail. Later calls return
// the first call's result.
func (cm *CleanupManager) Cleanup() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.done {
		return cm.err
	}
	var result *multierror.Error
	for _, step := range cm.fns {
		if err := step.fn(); err != nil {
			log.Warn().Err(err).Str("step", step.name).Msg("supervisor.CleanupManager step failed")
			result = multierror.Append(result, err)
		}
	}
	cm.done = true
	cm.err = result.ErrorOrNil()
	return cm.err
}
