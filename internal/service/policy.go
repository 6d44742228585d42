package service

import (
	"sync"

	"github.com/unclebandit/survey-escalation/internal/config"
)

// PolicyHolder shares the live escalation policy between the scheduler and
// the services it drives. Reloads replace it as a whole.
type PolicyHolder struct {
	mu sync.RWMutex
	p  config.Policy
}

func NewPolicyHolder(p config.Policy) *PolicyHolder {
	return &PolicyHolder{p: p.Normalize()}
}

func (h *PolicyHolder) Get() config.Policy {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.p
}

func (h *PolicyHolder) Set(p config.Policy) {
	h.mu.Lock()
	h.p = p.Normalize()
	h.mu.Unlock()
}
