package config

import (
	"fmt"
	"sync"

	"github.com/prostopil/patchwatch/internal/mapping"
	"github.com/prostopil/patchwatch/internal/policy"
)

// Snapshot is an immutable view of the policy and mapping rules taken at
// the start of a dispatch cycle. A cycle never observes a partially
// updated configuration.
type Snapshot struct {
	Policy policy.Policy
	Rules  *mapping.RuleSet
}

// Store holds the live configuration and hands out consistent snapshots.
// Replace swaps policy and rules atomically; readers always see either
// the old pair or the new pair, never a mix.
type Store struct {
	mu   sync.RWMutex
	cfg  *Config
	snap Snapshot
}

// NewStore builds a store from a validated configuration.
func NewStore(cfg *Config) (*Store, error) {
	rules, err := mapping.NewRuleSet(cfg.Mappings)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFatalConfig, err)
	}
	return &Store{
		cfg:  cfg,
		snap: Snapshot{Policy: cfg.Policy, Rules: rules},
	}, nil
}

// Snapshot returns the current consistent policy+rules view.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Config returns a copy of the current full configuration.
func (s *Store) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg := *s.cfg
	cfg.Mappings = append([]mapping.Rule(nil), s.cfg.Mappings...)
	return cfg
}

// Replace atomically installs a new policy and mapping rule list. The
// rules are validated and ordered before the swap; on error the previous
// configuration stays active.
func (s *Store) Replace(p policy.Policy, rules []mapping.Rule) error {
	rs, err := mapping.NewRuleSet(rules)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFatalConfig, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Policy = p
	s.cfg.Mappings = append([]mapping.Rule(nil), rules...)
	s.snap = Snapshot{Policy: p, Rules: rs}
	return nil
}
