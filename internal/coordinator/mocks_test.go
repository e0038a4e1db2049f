package coordinator

import (
	"context"
	"sync"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"mqtt-cluster/internal/broker"
	"mqtt-cluster/internal/logger"
	"mqtt-cluster/internal/metrics"
	"mqtt-cluster/internal/session"
	"mqtt-cluster/internal/storage"
)

// fakeSession answers from fixed values. Hooks, when set, replace them.
type fakeSession struct {
	connect     bool
	publish     bool
	subscribe   bool
	replication bool
	err         error
	identityErr error

	onPublish   func() (bool, error)
	onSubscribe func() (bool, error)
}

func (s *fakeSession) ProceedConnect(ctx context.Context, c broker.ConnectContext) (bool, error) {
	return s.connect, s.err
}

func (s *fakeSession) ProceedPublish(ctx context.Context, p broker.PublishContext) (bool, error) {
	if s.onPublish != nil {
		return s.onPublish()
	}
	return s.publish, s.err
}

func (s *fakeSession) ProceedSubscription(ctx context.Context, sc broker.SubscriptionContext) (bool, error) {
	if s.onSubscribe != nil {
		return s.onSubscribe()
	}
	return s.subscribe, s.err
}

func (s *fakeSession) IsReplicationUser(ctx context.Context) (bool, error) {
	return s.replication, s.identityErr
}

// fakeSessions resolves client ids to fake sessions. Unknown clients get
// a session that accepts everything and is not the replication identity.
type fakeSessions struct {
	mu       sync.Mutex
	sessions map[string]*fakeSession
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: make(map[string]*fakeSession)}
}

func (f *fakeSessions) set(clientID string, s *fakeSession) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[clientID] = s
}

func (f *fakeSessions) Session(clientID string) session.ClientSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[clientID]; ok {
		return s
	}
	return &fakeSession{connect: true, publish: true, subscribe: true}
}

// fakeRepo records every batch handed to it
type fakeRepo struct {
	mu       sync.Mutex
	err      error
	block    chan struct{}
	entered  chan struct{}
	events   [][]storage.EventLog
	messages [][]storage.PublishMessage
}

func (r *fakeRepo) wait() {
	if r.entered != nil {
		r.entered <- struct{}{}
	}
	if r.block != nil {
		<-r.block
	}
}

func (r *fakeRepo) InsertEventLogs(ctx context.Context, logs []storage.EventLog) error {
	r.wait()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, logs)
	return nil
}

func (r *fakeRepo) InsertPublishMessages(ctx context.Context, msgs []storage.PublishMessage) error {
	r.wait()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.messages = append(r.messages, msgs)
	return nil
}

func (r *fakeRepo) ListEventLogs(ctx context.Context, limit int) ([]storage.EventLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []storage.EventLog
	for _, b := range r.events {
		out = append(out, b...)
	}
	return out, nil
}

func (r *fakeRepo) ListPublishMessages(ctx context.Context, limit int) ([]storage.PublishMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []storage.PublishMessage
	for _, b := range r.messages {
		out = append(out, b...)
	}
	return out, nil
}

func (r *fakeRepo) eventBatches() [][]storage.EventLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]storage.EventLog(nil), r.events...)
}

func (r *fakeRepo) messageBatches() [][]storage.PublishMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]storage.PublishMessage(nil), r.messages...)
}

func (r *fakeRepo) eventCount() int {
	n := 0
	for _, b := range r.eventBatches() {
		n += len(b)
	}
	return n
}

func (r *fakeRepo) messageCount() int {
	n := 0
	for _, b := range r.messageBatches() {
		n += len(b)
	}
	return n
}

type forwardCall struct {
	settings broker.ConnectionSettings
	msg      broker.Message
}

// fakePublisher records forwards. onPublish, when set, runs after the
// call is recorded.
type fakePublisher struct {
	mu        sync.Mutex
	calls     []forwardCall
	err       error
	block     chan struct{}
	onPublish func(broker.ConnectionSettings, broker.Message)
}

func (p *fakePublisher) Publish(ctx context.Context, settings broker.ConnectionSettings, msg broker.Message) error {
	if p.block != nil {
		<-p.block
	}

	p.mu.Lock()
	p.calls = append(p.calls, forwardCall{settings: settings, msg: msg})
	err := p.err
	hook := p.onPublish
	p.mu.Unlock()

	if hook != nil {
		hook(settings, msg)
	}
	return err
}

func (p *fakePublisher) forwards() []forwardCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]forwardCall(nil), p.calls...)
}

// fakeNotifier records notified batches
type fakeNotifier struct {
	mu       sync.Mutex
	events   int
	messages int
}

func (n *fakeNotifier) NotifyEventLogs(ctx context.Context, logs []storage.EventLog) {
	n.mu.Lock()
	n.events += len(logs)
	n.mu.Unlock()
}

func (n *fakeNotifier) NotifyPublishMessages(ctx context.Context, msgs []storage.PublishMessage) {
	n.mu.Lock()
	n.messages += len(msgs)
	n.mu.Unlock()
}

type testEnv struct {
	coord     *Coordinator
	sessions  *fakeSessions
	repo      *fakeRepo
	publisher *fakePublisher
	clock     *clock.Mock
	metrics   *metrics.Metrics
}

func newTestEnv(t *testing.T, cfg Config, opts ...Option) *testEnv {
	t.Helper()

	m, err := metrics.NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	env := &testEnv{
		sessions:  newFakeSessions(),
		repo:      &fakeRepo{},
		publisher: &fakePublisher{},
		clock:     clock.NewMock(),
		metrics:   m,
	}
	if cfg.ClusterID == "" {
		cfg.ClusterID = "test-cluster"
	}

	opts = append([]Option{WithClock(env.clock), WithMetrics(m)}, opts...)
	env.coord = New(cfg,
		env.sessions,
		Repositories{EventLogs: env.repo, PublishMessages: env.repo},
		env.publisher,
		logger.NewNop(),
		opts...)

	t.Cleanup(func() {
		env.coord.Close(context.Background())
	})
	return env
}
