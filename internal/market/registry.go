package market

import (
	"fmt"
	"sync"
)

// MaxFeeBps caps the operator fee at 100%.
const MaxFeeBps = 10_000

// Registry holds the marketplace's provisioned configuration: the operator
// account that collects listing fees and the fee rate in basis points.
// It is set exactly once per deployment and read by every settlement.
type Registry struct {
	mu          sync.RWMutex
	operator    string
	feeBps      int64
	initialized bool
}

func NewRegistry() *Registry { return &Registry{} }

// Init provisions the registry. A second call fails with ErrAlreadyInitialized;
// the fee rate cannot be changed after provisioning.
func (r *Registry) Init(operator string, feeBps int64) error {
	if operator == "" {
		return fmt.Errorf("init market: empty operator")
	}
	if feeBps < 0 || feeBps > MaxFeeBps {
		return fmt.Errorf("init market: fee %d out of range [0, %d]", feeBps, MaxFeeBps)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.initialized {
		return ErrAlreadyInitialized
	}
	r.operator = operator
	r.feeBps = feeBps
	r.initialized = true
	return nil
}

// Initialized reports whether provisioning has happened.
func (r *Registry) Initialized() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.initialized
}

// Operator returns the fee-collecting account.
func (r *Registry) Operator() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.operator
}

// FeeBps returns the operator fee rate in basis points.
func (r *Registry) FeeBps() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.feeBps
}
