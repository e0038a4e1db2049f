package session

import (
	"context"
	"fmt"
	"sync"

	"mqtt-cluster/internal/broker"
	"mqtt-cluster/internal/logger"
)

// clientActor serializes every question about one client through its
// mailbox goroutine. bound is only touched from that goroutine.
type clientActor struct {
	clientID string
	policy   *Policy
	logger   *logger.Logger

	mailbox  chan func()
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	bound *user
}

func newClientActor(clientID string, policy *Policy, log *logger.Logger, mailboxSize int) *clientActor {
	a := &clientActor{
		clientID: clientID,
		policy:   policy,
		logger:   log.With("clientId", clientID),
		mailbox:  make(chan func(), mailboxSize),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *clientActor) run() {
	defer close(a.done)
	for {
		select {
		case fn := <-a.mailbox:
			fn()
		case <-a.stop:
			return
		}
	}
}

// Stop ends the mailbox goroutine and waits for it. Pending questions
// are answered with ErrActorStopped.
func (a *clientActor) Stop() {
	a.stopOnce.Do(func() {
		close(a.stop)
	})
	<-a.done
}

// ask runs fn on the mailbox goroutine and waits for it to finish. A
// question whose ctx is done by the time it is dequeued is not run.
func (a *clientActor) ask(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	msg := func() {
		defer func() {
			if r := recover(); r != nil {
				result <- fmt.Errorf("session %s panicked: %v", a.clientID, r)
			}
		}()
		if err := ctx.Err(); err != nil {
			result <- err
			return
		}
		result <- fn()
	}

	select {
	case <-a.stop:
		return ErrActorStopped
	default:
	}

	select {
	case a.mailbox <- msg:
	case <-a.stop:
		return ErrActorStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-result:
		return err
	case <-a.done:
		select {
		case err := <-result:
			return err
		default:
			return ErrActorStopped
		}
	}
}

func (a *clientActor) ProceedConnect(ctx context.Context, c broker.ConnectContext) (bool, error) {
	var accepted bool
	err := a.ask(ctx, func() error {
		u, err := a.policy.authenticate(c.Username, c.Password, c.ClientID)
		if err != nil {
			a.logger.Debug("connect denied",
				"username", c.Username,
				"endpoint", c.Endpoint,
				"reason", err)
			return nil
		}
		a.bound = u
		accepted = true
		return nil
	})
	return accepted, err
}

func (a *clientActor) ProceedPublish(ctx context.Context, p broker.PublishContext) (bool, error) {
	var accepted bool
	err := a.ask(ctx, func() error {
		accepted = a.bound != nil && a.bound.canPublish(p.Topic)
		if !accepted {
			a.logger.Debug("publish denied", "topic", p.Topic)
		}
		return nil
	})
	return accepted, err
}

func (a *clientActor) ProceedSubscription(ctx context.Context, s broker.SubscriptionContext) (bool, error) {
	var accepted bool
	err := a.ask(ctx, func() error {
		accepted = a.bound != nil && a.bound.canSubscribe(s.TopicFilter)
		if !accepted {
			a.logger.Debug("subscription denied", "topicFilter", s.TopicFilter)
		}
		return nil
	})
	return accepted, err
}

func (a *clientActor) IsReplicationUser(ctx context.Context) (bool, error) {
	var replication bool
	err := a.ask(ctx, func() error {
		replication = a.bound != nil && a.bound.replication
		return nil
	})
	return replication, err
}
