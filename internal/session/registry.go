package session

import (
	"sync/atomic"

	"mqtt-cluster/internal/actor"
	"mqtt-cluster/internal/logger"
)

const defaultMailboxSize = 16

// Registry hands out one session actor per client identity, creating
// it on first lookup.
type Registry struct {
	policy      *Policy
	logger      *logger.Logger
	actors      *actor.Registry[string, *clientActor]
	mailboxSize int
	closed      atomic.Bool
}

// NewRegistry creates a registry whose sessions answer from policy
func NewRegistry(policy *Policy, log *logger.Logger) *Registry {
	return &Registry{
		policy:      policy,
		logger:      log,
		actors:      actor.NewRegistry[string, *clientActor](),
		mailboxSize: defaultMailboxSize,
	}
}

// Session returns the actor for clientID. After Close every returned
// session answers with ErrActorStopped.
func (r *Registry) Session(clientID string) ClientSession {
	if r.closed.Load() {
		a := newClientActor(clientID, r.policy, r.logger, 0)
		a.Stop()
		return a
	}

	a, created := r.actors.GetOrCreate(clientID, func(id string) *clientActor {
		return newClientActor(id, r.policy, r.logger, r.mailboxSize)
	})
	if created && r.closed.Load() {
		// Lost a race with Close
		a.Stop()
		r.actors.Remove(clientID)
		return a
	}
	if created {
		r.logger.Debug("session actor activated", "clientId", clientID)
	}
	return a
}

// Len returns the number of active session actors
func (r *Registry) Len() int {
	return r.actors.Len()
}

// Close stops every session actor
func (r *Registry) Close() {
	r.closed.Store(true)
	r.actors.Range(func(id string, a *clientActor) bool {
		a.Stop()
		r.actors.Remove(id)
		return true
	})
	r.logger.Info("session actors stopped")
}
