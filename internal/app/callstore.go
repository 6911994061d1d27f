package app

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/televisit/signaling/internal/domain"
)

// CallStore owns every live call record. All reads hand out snapshot
// copies; mutations happen only through store methods under the lock, so
// a read-modify-write on one call (e.g. candidate append) never races.
//
// Mutations on an unknown call id are no-ops, not errors: a stale client
// may keep signaling for a call that was declined or reaped.
type CallStore struct {
	mu    sync.RWMutex
	calls map[domain.CallID]*domain.Call

	now func() time.Time
}

func NewCallStore() *CallStore {
	return &CallStore{
		calls: make(map[domain.CallID]*domain.Call),
		now:   time.Now,
	}
}

// Create registers a new pending call. An existing record under the same
// id is replaced wholesale, candidate buffers included.
func (s *CallStore) Create(id domain.CallID, caller, callee domain.Identity, kind string, offer json.RawMessage) domain.Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &domain.Call{
		ID:        id,
		Caller:    caller,
		Callee:    callee,
		Kind:      kind,
		Status:    domain.CallPending,
		Offer:     offer,
		CreatedAt: s.now(),
	}
	s.calls[id] = c
	log.Info().Str("module", "app.callstore").
		Str("call", string(id)).
		Str("caller", string(caller)).
		Str("callee", string(callee)).
		Msg("created call")
	return snapshot(c)
}

func (s *CallStore) Get(id domain.CallID) (domain.Call, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.calls[id]
	if !ok {
		return domain.Call{}, false
	}
	return snapshot(c), true
}

// ApplyAnswer stores the answer and moves the call to connected.
// A repeated answer overwrites the stored one and refreshes answered-at.
func (s *CallStore) ApplyAnswer(id domain.CallID, answer json.RawMessage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[id]
	if !ok {
		return false
	}
	c.Answer = answer
	c.Status = domain.CallConnected
	c.AnsweredAt = s.now()
	log.Info().Str("module", "app.callstore").Str("call", string(id)).Msg("applied answer")
	return true
}

// AppendCandidate buffers a connectivity candidate on the sender's side of
// the call. The side is chosen by comparing from against the stored
// caller; anything else lands in the callee buffer. Buffers are
// append-only, order preserved, duplicates kept.
func (s *CallStore) AppendCandidate(id domain.CallID, from domain.Identity, candidate json.RawMessage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[id]
	if !ok {
		return false
	}
	if from == c.Caller {
		c.CallerCandidates = append(c.CallerCandidates, candidate)
	} else {
		c.CalleeCandidates = append(c.CalleeCandidates, candidate)
	}
	return true
}

// MarkEnded moves the call to ended and returns a snapshot so the router
// can notify the other participant. The record stays queryable until the
// grace delete or the reaper removes it.
func (s *CallStore) MarkEnded(id domain.CallID) (domain.Call, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[id]
	if !ok {
		return domain.Call{}, false
	}
	c.Status = domain.CallEnded
	c.EndedAt = s.now()
	log.Info().Str("module", "app.callstore").Str("call", string(id)).Msg("call ended")
	return snapshot(c), true
}

// MarkDeclined moves the call to declined and removes it immediately.
func (s *CallStore) MarkDeclined(id domain.CallID) (domain.Call, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[id]
	if !ok {
		return domain.Call{}, false
	}
	c.Status = domain.CallDeclined
	out := snapshot(c)
	delete(s.calls, id)
	log.Info().Str("module", "app.callstore").Str("call", string(id)).Msg("call declined")
	return out, true
}

// Remove deletes the record if present. Idempotent, so a grace-delete
// timer racing a decline or the reaper is harmless.
func (s *CallStore) Remove(id domain.CallID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.calls[id]; ok {
		delete(s.calls, id)
		log.Info().Str("module", "app.callstore").Str("call", string(id)).Msg("removed call")
	}
}

// SweepExpired removes every call older than maxAge at now, regardless of
// status, and reports how many were dropped.
func (s *CallStore) SweepExpired(maxAge time.Duration, now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, c := range s.calls {
		if now.Sub(c.CreatedAt) > maxAge {
			delete(s.calls, id)
			removed++
			log.Info().Str("module", "app.callstore").
				Str("call", string(id)).
				Str("status", string(c.Status)).
				Msg("swept expired call")
		}
	}
	return removed
}

func (s *CallStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.calls)
}

func snapshot(c *domain.Call) domain.Call {
	out := *c
	out.CallerCandidates = append([]json.RawMessage(nil), c.CallerCandidates...)
	out.CalleeCandidates = append([]json.RawMessage(nil), c.CalleeCandidates...)
	return out
}
