// Package hub holds the process-wide session registry and the two read-only
// consumers built on top of it: message fan-out and the call-signaling relay.
package hub

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mkoval/parley/internal/core"
	"github.com/mkoval/parley/internal/domain"
)

// Registry maps identities to their active transport session. One session per
// identity: a new registration evicts the prior one. Entries are removed
// synchronously on disconnect so a lookup never returns a torn-down session.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.UserID]core.ClientSession
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[domain.UserID]core.ClientSession)}
}

// Register binds id to sess, last-writer-wins. The evicted prior session, if
// any, is returned; the caller is responsible for closing it.
func (r *Registry) Register(id domain.UserID, sess core.ClientSession) core.ClientSession {
	r.mu.Lock()
	old := r.sessions[id]
	r.sessions[id] = sess
	r.mu.Unlock()
	log.Info().Str("module", "hub.registry").Str("user", string(id)).Bool("evicted", old != nil).Msg("session registered")
	return old
}

// Unregister removes the mapping for id. No-op if absent.
func (r *Registry) Unregister(id domain.UserID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return
	}
	delete(r.sessions, id)
	log.Info().Str("module", "hub.registry").Str("user", string(id)).Msg("session unregistered")
}

// UnregisterSession removes whatever entry currently points at sess. Used on
// disconnect, where the identity may already belong to a replacement session;
// in that case the replacement stays registered. Idempotent.
func (r *Registry) UnregisterSession(sess core.ClientSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		if s == sess {
			delete(r.sessions, id)
			log.Info().Str("module", "hub.registry").Str("user", string(id)).Msg("session unregistered by handle")
			return
		}
	}
}

// Lookup returns the live session for id. Read-only, never blocks on I/O.
func (r *Registry) Lookup(id domain.UserID) (core.ClientSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[id]
	return sess, ok
}

// Online reports whether id has an active session.
func (r *Registry) Online(id domain.UserID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[id]
	return ok
}

// OnlineSet snapshots the identities with an active session. Used to fill
// presence on a batch of user records with one lock acquisition.
func (r *Registry) OnlineSet() map[domain.UserID]struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[domain.UserID]struct{}, len(r.sessions))
	for id := range r.sessions {
		out[id] = struct{}{}
	}
	return out
}
