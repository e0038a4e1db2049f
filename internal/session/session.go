// Package session implements the per-client session actors that decide
// whether a client may connect, publish or subscribe.
package session

import (
	"context"
	"errors"

	"mqtt-cluster/internal/broker"
)

// ErrActorStopped is returned when a session is asked after it stopped
var ErrActorStopped = errors.New("session actor stopped")

// ClientSession answers admission questions for one client identity.
// An error means the session could not answer, not that it said no.
type ClientSession interface {
	ProceedConnect(ctx context.Context, c broker.ConnectContext) (bool, error)
	ProceedPublish(ctx context.Context, p broker.PublishContext) (bool, error)
	ProceedSubscription(ctx context.Context, s broker.SubscriptionContext) (bool, error)
	IsReplicationUser(ctx context.Context) (bool, error)
}

// Directory resolves a client identity to its session
type Directory interface {
	Session(clientID string) ClientSession
}
