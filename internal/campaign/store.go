// Package campaign detects coordinated attack campaigns per source IP
// using a sliding fixed-window counter held in a shared state store.
package campaign

import (
	"context"
	"sync"
	"time"

	"waf-sentinel/internal/schema"
)

// State is the mutable campaign record for one (organization, source
// IP) pair. It is owned exclusively by the Detector; other components
// only ever see copies.
type State struct {
	OrganizationID string              `json:"organization_id"`
	SourceIP       string              `json:"source_ip"`
	CampaignID     string              `json:"campaign_id,omitempty"`
	EventCount     int64               `json:"event_count"`
	FirstSeen      time.Time           `json:"first_seen"`
	LastSeen       time.Time           `json:"last_seen"`
	AttackTypes    []schema.ThreatType `json:"attack_types,omitempty"`
	Severity       schema.Severity     `json:"severity"`
	IsCampaign     bool                `json:"is_campaign"`
}

// clone returns a copy safe to hand outside the detector.
func (s *State) clone() *State {
	if s == nil {
		return nil
	}
	cp := *s
	cp.AttackTypes = append([]schema.ThreatType(nil), s.AttackTypes...)
	return &cp
}

// StateStore is the shared campaign state backend. Invocations run on
// independent instances, so counters must be atomic in the store, not
// in process memory.
type StateStore interface {
	// Increment atomically increments the window counter for key,
	// starting a new window with the given duration when none is
	// active. It returns the post-increment count and the window start.
	Increment(ctx context.Context, key string, window time.Duration) (count int64, windowStart time.Time, err error)

	// GetState returns the stored state for key, or nil when absent.
	GetState(ctx context.Context, key string) (*State, error)

	// PutState stores the state for key with the given retention.
	PutState(ctx context.Context, key string, state *State, ttl time.Duration) error

	// MergeState atomically folds delta into the stored state for key
	// and returns the merged result plus whether this call transitioned
	// the campaign flag from false to true. Stored state from a
	// different window (FirstSeen mismatch) is replaced, not merged.
	// Within a window the merge takes the count maximum, the severity
	// maximum, the attack-type union and the OR of the campaign flags,
	// so a stale writer can never regress the state.
	MergeState(ctx context.Context, key string, delta *State, ttl time.Duration) (*State, bool, error)

	// ListStates returns all states whose key starts with prefix.
	ListStates(ctx context.Context, prefix string) (map[string]*State, error)

	// DeleteStates removes the given state entries and their counters.
	DeleteStates(ctx context.Context, keys ...string) error
}

// MemoryStore is an in-process StateStore used in tests and
// single-instance deployments.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*memCounter
	states   map[string]*State
	now      func() time.Time
}

type memCounter struct {
	count       int64
	windowStart time.Time
	expiresAt   time.Time
}

// NewMemoryStore creates an empty in-memory state store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		counters: make(map[string]*memCounter),
		states:   make(map[string]*State),
		now:      time.Now,
	}
}

// SetClock overrides the store's clock, for tests.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *MemoryStore) Increment(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	c, ok := m.counters[key]
	if !ok || now.After(c.expiresAt) {
		c = &memCounter{
			count:       0,
			windowStart: now,
			expiresAt:   now.Add(window),
		}
		m.counters[key] = c
	}
	c.count++
	return c.count, c.windowStart, nil
}

func (m *MemoryStore) GetState(ctx context.Context, key string) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[key].clone(), nil
}

func (m *MemoryStore) PutState(ctx context.Context, key string, state *State, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[key] = state.clone()
	return nil
}

func (m *MemoryStore) MergeState(ctx context.Context, key string, delta *State, ttl time.Duration) (*State, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state := m.states[key]
	if state == nil || !state.FirstSeen.Equal(delta.FirstSeen) {
		state = delta.clone()
		m.states[key] = state
		return state.clone(), state.IsCampaign, nil
	}

	was := state.IsCampaign
	if delta.EventCount > state.EventCount {
		state.EventCount = delta.EventCount
	}
	state.LastSeen = delta.LastSeen
	for _, t := range delta.AttackTypes {
		state.AttackTypes = appendThreatType(state.AttackTypes, t)
	}
	state.Severity = schema.MaxSeverity(state.Severity, delta.Severity)
	state.IsCampaign = was || delta.IsCampaign
	if state.IsCampaign && state.CampaignID == "" {
		state.CampaignID = delta.CampaignID
	}

	return state.clone(), state.IsCampaign && !was, nil
}

func (m *MemoryStore) ListStates(ctx context.Context, prefix string) (map[string]*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make(map[string]*State)
	for key, state := range m.states {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			result[key] = state.clone()
		}
	}
	return result, nil
}

func (m *MemoryStore) DeleteStates(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.states, key)
		delete(m.counters, key)
	}
	return nil
}
