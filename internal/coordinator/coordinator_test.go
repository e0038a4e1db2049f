package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mqtt-cluster/internal/broker"
	"mqtt-cluster/internal/storage"
)

const (
	waitFor = time.Second
	tick    = 5 * time.Millisecond
)

func brokerSettings(name string) *broker.ConnectionSettings {
	return &broker.ConnectionSettings{
		ClientID: "bridge-" + name,
		Host:     name + ".example.com",
		Port:     1883,
		Username: "bridge",
		Password: "secret",
	}
}

func publishContext(clientID, topic string) broker.PublishContext {
	return broker.PublishContext{
		ClientID: clientID,
		Topic:    topic,
		Payload:  []byte("payload"),
		QoS:      1,
	}
}

func statValue(t *testing.T, c *Coordinator, key string) uint64 {
	t.Helper()
	v, ok := c.Stats()[key].(uint64)
	require.True(t, ok, "stat %s missing", key)
	return v
}

func TestNewAppliesDefaults(t *testing.T) {
	env := newTestEnv(t, Config{})

	assert.Equal(t, "test-cluster", env.coord.ID())
	assert.Equal(t, DefaultWorkers, env.coord.cfg.Workers)
	assert.Equal(t, DefaultQueueSize, env.coord.cfg.QueueSize)
	assert.Equal(t, DefaultFlushDelay, env.coord.cfg.FlushDelay)
	assert.Equal(t, DefaultFlushInterval, env.coord.cfg.FlushInterval)
	assert.Empty(t, env.coord.Brokers())
}

func TestConnectAndDisconnectBroker(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	b1 := uuid.New()
	require.NoError(t, env.coord.ConnectBroker(ctx, brokerSettings("b1"), b1))
	assert.Equal(t, []uuid.UUID{b1}, env.coord.Brokers())

	require.NoError(t, env.coord.DisconnectBroker(ctx, b1))
	assert.Empty(t, env.coord.Brokers())

	// Unknown brokers still leave an audit trail
	require.NoError(t, env.coord.DisconnectBroker(ctx, uuid.New()))

	events := env.coord.eventLogQueue.DrainAll()
	require.Len(t, events, 3)
	assert.Equal(t, storage.EventTypeBrokerConnect, events[0].EventType)
	assert.Equal(t, fmt.Sprintf("New broker connected: BrokerId = %s.", b1), events[0].EventDetails)
	assert.Equal(t, storage.EventTypeBrokerDisconnect, events[1].EventType)
	assert.Equal(t, fmt.Sprintf("Broker disconnected: BrokerId = %s.", b1), events[1].EventDetails)
	assert.Equal(t, storage.EventTypeBrokerDisconnect, events[2].EventType)
}

func TestReconnectReplacesSettings(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	id := uuid.New()
	require.NoError(t, env.coord.ConnectBroker(ctx, brokerSettings("old"), id))
	require.NoError(t, env.coord.ConnectBroker(ctx, brokerSettings("new"), id))

	settings, ok := env.coord.brokers.Get(id)
	require.True(t, ok)
	assert.Equal(t, "new.example.com", settings.Host)
	assert.Len(t, env.coord.Brokers(), 1)
}

func TestConnectBrokerCopiesSettings(t *testing.T) {
	env := newTestEnv(t, Config{})

	id := uuid.New()
	settings := brokerSettings("b1")
	require.NoError(t, env.coord.ConnectBroker(context.Background(), settings, id))
	settings.Host = "changed.example.com"

	stored, ok := env.coord.brokers.Get(id)
	require.True(t, ok)
	assert.Equal(t, "b1.example.com", stored.Host)
}

func TestValidationErrors(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	tests := []struct {
		name  string
		call  func() error
		field string
	}{
		{
			name:  "connect broker nil settings",
			call:  func() error { return env.coord.ConnectBroker(ctx, nil, uuid.New()) },
			field: "settings",
		},
		{
			name:  "connect broker nil id",
			call:  func() error { return env.coord.ConnectBroker(ctx, brokerSettings("b1"), uuid.Nil) },
			field: "brokerId",
		},
		{
			name: "connect broker blank host",
			call: func() error {
				s := brokerSettings("b1")
				s.Host = "  "
				return env.coord.ConnectBroker(ctx, s, uuid.New())
			},
			field: "settings.host",
		},
		{
			name: "connect broker port out of range",
			call: func() error {
				s := brokerSettings("b1")
				s.Port = 70000
				return env.coord.ConnectBroker(ctx, s, uuid.New())
			},
			field: "settings.port",
		},
		{
			name:  "disconnect broker nil id",
			call:  func() error { return env.coord.DisconnectBroker(ctx, uuid.Nil) },
			field: "brokerId",
		},
		{
			name: "disconnect blank client",
			call: func() error {
				return env.coord.ProceedDisconnect(ctx, broker.DisconnectContext{ClientID: " "})
			},
			field: "clientId",
		},
		{
			name: "unsubscription blank client",
			call: func() error {
				return env.coord.ProceedUnsubscription(ctx, broker.UnsubscriptionContext{Topic: "t/1"})
			},
			field: "clientId",
		},
		{
			name: "unsubscription blank topic",
			call: func() error {
				return env.coord.ProceedUnsubscription(ctx, broker.UnsubscriptionContext{ClientID: "c1"})
			},
			field: "topic",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrValidation))

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	assert.Zero(t, env.coord.eventLogQueue.Len())
	assert.Empty(t, env.coord.Brokers())
}

func TestEventDetails(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	require.True(t, env.coord.ProceedConnect(ctx, broker.ConnectContext{
		ClientID:     "c1",
		Endpoint:     "10.0.0.1:5000",
		Username:     "alice",
		Password:     "hunter2",
		CleanSession: true,
	}))
	require.NoError(t, env.coord.ProceedDisconnect(ctx, broker.DisconnectContext{
		ClientID:       "c1",
		DisconnectType: broker.DisconnectTypeNotClean,
	}))
	require.True(t, env.coord.ProceedSubscription(ctx, broker.SubscriptionContext{
		ClientID:    "c1",
		TopicFilter: "sensors/#",
	}))
	require.NoError(t, env.coord.ProceedUnsubscription(ctx, broker.UnsubscriptionContext{
		ClientID: "c1",
		Topic:    "sensors/#",
	}))

	events := env.coord.eventLogQueue.DrainAll()
	require.Len(t, events, 4)

	want := []struct {
		eventType storage.EventType
		details   string
	}{
		{storage.EventTypeConnect, "New connection: ClientId = c1, Endpoint = 10.0.0.1:5000, Username = alice, CleanSession = true."},
		{storage.EventTypeDisconnect, fmt.Sprintf("Disconnected: ClientId = c1, DisconnectType = %s.", broker.DisconnectTypeNotClean)},
		{storage.EventTypeSubscription, "New subscription: ClientId = c1, TopicFilter = sensors/#."},
		{storage.EventTypeUnsubscription, "Unsubscription: ClientId = c1, Topic = sensors/#."},
	}
	for i, w := range want {
		assert.Equal(t, w.eventType, events[i].EventType)
		assert.Equal(t, w.details, events[i].EventDetails)
		assert.NotEqual(t, uuid.Nil, events[i].ID)
		assert.NotContains(t, events[i].EventDetails, "hunter2")
	}
}

func TestDeniedAdmissionsRecordNothing(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	require.NoError(t, env.coord.ConnectBroker(ctx, brokerSettings("b1"), uuid.New()))
	b2 := uuid.New()
	require.NoError(t, env.coord.ConnectBroker(ctx, brokerSettings("b2"), b2))
	env.coord.eventLogQueue.DrainAll()

	env.sessions.set("c1", &fakeSession{})

	assert.False(t, env.coord.ProceedConnect(ctx, broker.ConnectContext{ClientID: "c1"}))
	assert.False(t, env.coord.ProceedPublish(ctx, publishContext("c1", "t/1"), b2))
	assert.False(t, env.coord.ProceedSubscription(ctx, broker.SubscriptionContext{ClientID: "c1", TopicFilter: "t/#"}))

	assert.Zero(t, env.coord.eventLogQueue.Len())
	assert.Zero(t, env.coord.publishQueue.Len())
	assert.Len(t, env.coord.Brokers(), 2)
	assert.Never(t, func() bool { return len(env.publisher.forwards()) > 0 }, 50*time.Millisecond, tick)
	assert.Equal(t, uint64(3), statValue(t, env.coord, "admissions_denied"))
	assert.Zero(t, statValue(t, env.coord, "admission_faults"))
}

func TestAdmissionFaultsDeny(t *testing.T) {
	tests := []struct {
		name    string
		session *fakeSession
		call    func(c *Coordinator) bool
	}{
		{
			name:    "connect error",
			session: &fakeSession{connect: true, err: errors.New("boom")},
			call: func(c *Coordinator) bool {
				return c.ProceedConnect(context.Background(), broker.ConnectContext{ClientID: "c1"})
			},
		},
		{
			name:    "publish error",
			session: &fakeSession{publish: true, err: errors.New("boom")},
			call: func(c *Coordinator) bool {
				return c.ProceedPublish(context.Background(), publishContext("c1", "t/1"), uuid.New())
			},
		},
		{
			name: "publish panic",
			session: &fakeSession{onPublish: func() (bool, error) {
				panic("session crashed")
			}},
			call: func(c *Coordinator) bool {
				return c.ProceedPublish(context.Background(), publishContext("c1", "t/1"), uuid.New())
			},
		},
		{
			name:    "subscription error",
			session: &fakeSession{subscribe: true, err: errors.New("boom")},
			call: func(c *Coordinator) bool {
				return c.ProceedSubscription(context.Background(), broker.SubscriptionContext{ClientID: "c1", TopicFilter: "t"})
			},
		},
		{
			name: "subscription panic",
			session: &fakeSession{onSubscribe: func() (bool, error) {
				panic("session crashed")
			}},
			call: func(c *Coordinator) bool {
				return c.ProceedSubscription(context.Background(), broker.SubscriptionContext{ClientID: "c1", TopicFilter: "t"})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, Config{})
			env.sessions.set("c1", tt.session)

			assert.False(t, tt.call(env.coord))
			assert.Equal(t, uint64(1), statValue(t, env.coord, "admission_faults"))
			assert.Zero(t, env.coord.eventLogQueue.Len())
			assert.Zero(t, env.coord.publishQueue.Len())

			// The coordinator keeps serving after a fault
			assert.True(t, env.coord.ProceedConnect(context.Background(), broker.ConnectContext{ClientID: "c2"}))
		})
	}
}

func TestReplicationIdentityFaultKeepsRecord(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	require.NoError(t, env.coord.ConnectBroker(ctx, brokerSettings("b1"), uuid.New()))
	b2 := uuid.New()
	require.NoError(t, env.coord.ConnectBroker(ctx, brokerSettings("b2"), b2))

	env.sessions.set("c1", &fakeSession{publish: true, identityErr: errors.New("lookup failed")})

	assert.False(t, env.coord.ProceedPublish(ctx, publishContext("c1", "t/1"), b2))
	assert.Equal(t, 1, env.coord.publishQueue.Len())
	assert.Never(t, func() bool { return len(env.publisher.forwards()) > 0 }, 50*time.Millisecond, tick)
}

func TestPublishFansOutToPeersOnly(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	b1, b2 := uuid.New(), uuid.New()
	require.NoError(t, env.coord.ConnectBroker(ctx, brokerSettings("b1"), b1))
	require.NoError(t, env.coord.ConnectBroker(ctx, brokerSettings("b2"), b2))
	eventsBefore := env.coord.eventLogQueue.Len()

	pc := publishContext("c1", "t/1")
	pc.Retain = true
	require.True(t, env.coord.ProceedPublish(ctx, pc, b1))

	assert.Equal(t, eventsBefore, env.coord.eventLogQueue.Len())

	msgs := env.coord.publishQueue.DrainAll()
	require.Len(t, msgs, 1)
	assert.Equal(t, "c1", msgs[0].ClientID)
	assert.Equal(t, "t/1", msgs[0].Topic)
	assert.Equal(t, []byte("payload"), msgs[0].Payload)
	assert.Equal(t, byte(1), msgs[0].QoS)
	assert.True(t, msgs[0].Retain)

	require.Eventually(t, func() bool { return len(env.publisher.forwards()) == 1 }, waitFor, tick)
	assert.Never(t, func() bool { return len(env.publisher.forwards()) > 1 }, 50*time.Millisecond, tick)

	fwd := env.publisher.forwards()[0]
	assert.Equal(t, "b2.example.com", fwd.settings.Host)
	assert.Equal(t, broker.Message{Topic: "t/1", Payload: []byte("payload"), QoS: 1, Retain: true}, fwd.msg)

	require.Eventually(t, func() bool {
		return statValue(t, env.coord, "forwards_delivered") == 1
	}, waitFor, tick)
}

func TestReplicationIdentitySkipsFanOut(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	b1 := uuid.New()
	require.NoError(t, env.coord.ConnectBroker(ctx, brokerSettings("b1"), b1))
	require.NoError(t, env.coord.ConnectBroker(ctx, brokerSettings("b2"), uuid.New()))

	env.sessions.set("bridge", &fakeSession{publish: true, replication: true})

	require.True(t, env.coord.ProceedPublish(ctx, publishContext("bridge", "t/1"), b1))
	assert.Equal(t, 1, env.coord.publishQueue.Len())
	assert.Never(t, func() bool { return len(env.publisher.forwards()) > 0 }, 50*time.Millisecond, tick)
}

func TestSingleHopMesh(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	ids := map[string]uuid.UUID{}
	for _, name := range []string{"a", "b", "c"} {
		id := uuid.New()
		ids["bridge-"+name] = id
		require.NoError(t, env.coord.ConnectBroker(ctx, brokerSettings(name), id))
		env.sessions.set("bridge-"+name, &fakeSession{publish: true, replication: true})
	}

	// Each peer reports the forwarded publish back as coming from the
	// replication identity it was delivered with.
	env.publisher.onPublish = func(s broker.ConnectionSettings, msg broker.Message) {
		pc := broker.PublishContext{ClientID: s.ClientID, Topic: msg.Topic, Payload: msg.Payload, QoS: msg.QoS}
		env.coord.ProceedPublish(context.Background(), pc, ids[s.ClientID])
	}

	require.True(t, env.coord.ProceedPublish(ctx, publishContext("c1", "t/1"), ids["bridge-a"]))

	require.Eventually(t, func() bool { return env.coord.publishQueue.Len() == 3 }, waitFor, tick)
	assert.Never(t, func() bool { return len(env.publisher.forwards()) > 2 }, 100*time.Millisecond, tick)

	hosts := []string{}
	for _, f := range env.publisher.forwards() {
		hosts = append(hosts, f.settings.Host)
	}
	assert.ElementsMatch(t, []string{"b.example.com", "c.example.com"}, hosts)
}

func TestFanOutFailuresAreContained(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	b1 := uuid.New()
	require.NoError(t, env.coord.ConnectBroker(ctx, brokerSettings("b1"), b1))
	require.NoError(t, env.coord.ConnectBroker(ctx, brokerSettings("b2"), uuid.New()))
	require.NoError(t, env.coord.ConnectBroker(ctx, brokerSettings("b3"), uuid.New()))

	env.publisher.err = errors.New("connection refused")

	assert.True(t, env.coord.ProceedPublish(ctx, publishContext("c1", "t/1"), b1))
	require.Eventually(t, func() bool {
		return statValue(t, env.coord, "forwards_failed") == 2
	}, waitFor, tick)
	assert.Equal(t, 1, env.coord.publishQueue.Len())
}

func TestPublishDoesNotWaitForFanOut(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	b1 := uuid.New()
	require.NoError(t, env.coord.ConnectBroker(ctx, brokerSettings("b1"), b1))
	require.NoError(t, env.coord.ConnectBroker(ctx, brokerSettings("b2"), uuid.New()))

	release := make(chan struct{})
	env.publisher.block = release

	done := make(chan bool, 1)
	go func() {
		done <- env.coord.ProceedPublish(ctx, publishContext("c1", "t/1"), b1)
	}()

	select {
	case accepted := <-done:
		assert.True(t, accepted)
	case <-time.After(waitFor):
		t.Fatal("publish waited for fan-out")
	}
	assert.Empty(t, env.publisher.forwards())

	close(release)
	require.Eventually(t, func() bool { return len(env.publisher.forwards()) == 1 }, waitFor, tick)
}

func TestPublishBypassesBusyMailbox(t *testing.T) {
	env := newTestEnv(t, Config{})

	entered := make(chan struct{})
	release := make(chan struct{})
	env.sessions.set("slow", &fakeSession{onSubscribe: func() (bool, error) {
		close(entered)
		<-release
		return true, nil
	}})

	go env.coord.ProceedSubscription(context.Background(), broker.SubscriptionContext{ClientID: "slow", TopicFilter: "t"})
	<-entered
	defer close(release)

	done := make(chan bool, 1)
	go func() {
		done <- env.coord.ProceedPublish(context.Background(), publishContext("c1", "t/1"), uuid.New())
	}()

	select {
	case accepted := <-done:
		assert.True(t, accepted)
	case <-time.After(waitFor):
		t.Fatal("publish waited behind the mailbox")
	}
}

// blockMailbox parks a slow subscription on the mailbox until the
// returned func is called. The subscription itself is accepted.
func blockMailbox(t *testing.T, env *testEnv) func() {
	t.Helper()

	entered := make(chan struct{})
	release := make(chan struct{})
	env.sessions.set("slow", &fakeSession{onSubscribe: func() (bool, error) {
		close(entered)
		<-release
		return true, nil
	}})

	go env.coord.ProceedSubscription(context.Background(), broker.SubscriptionContext{ClientID: "slow", TopicFilter: "t"})
	<-entered

	var once sync.Once
	return func() { once.Do(func() { close(release) }) }
}

func TestMailboxHonorsContext(t *testing.T) {
	env := newTestEnv(t, Config{})
	release := blockMailbox(t, env)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- env.coord.ProceedDisconnect(ctx, broker.DisconnectContext{ClientID: "c1"})
	}()

	<-ctx.Done()
	release()
	assert.ErrorIs(t, <-errCh, context.DeadlineExceeded)

	// Only the subscription was recorded
	require.Eventually(t, func() bool { return env.coord.eventLogQueue.Len() == 1 }, waitFor, tick)
	events := env.coord.eventLogQueue.DrainAll()
	assert.Equal(t, storage.EventTypeSubscription, events[0].EventType)
}

func TestExpiredAdmissionRecordsNothing(t *testing.T) {
	tests := []struct {
		name string
		call func(ctx context.Context, c *Coordinator) bool
	}{
		{
			name: "connect",
			call: func(ctx context.Context, c *Coordinator) bool {
				return c.ProceedConnect(ctx, broker.ConnectContext{ClientID: "c1"})
			},
		},
		{
			name: "subscription",
			call: func(ctx context.Context, c *Coordinator) bool {
				return c.ProceedSubscription(ctx, broker.SubscriptionContext{ClientID: "c1", TopicFilter: "t/#"})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, Config{})
			release := blockMailbox(t, env)
			defer release()

			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
			defer cancel()

			answers := make(chan bool, 1)
			go func() { answers <- tt.call(ctx, env.coord) }()

			<-ctx.Done()
			release()
			assert.False(t, <-answers)

			// A synchronous round trip guarantees the expired job was dequeued
			require.NoError(t, env.coord.ProceedDisconnect(context.Background(), broker.DisconnectContext{ClientID: "c2"}))

			events := env.coord.eventLogQueue.DrainAll()
			require.Len(t, events, 2)
			assert.Equal(t, storage.EventTypeSubscription, events[0].EventType)
			assert.Equal(t, storage.EventTypeDisconnect, events[1].EventType)
			assert.Equal(t, uint64(1), statValue(t, env.coord, "admission_faults"))
		})
	}
}

func TestRegistryUnderConcurrentMembership(t *testing.T) {
	env := newTestEnv(t, Config{Workers: 4})
	ctx := context.Background()

	const n = 50
	ids := make([]uuid.UUID, n)
	for i := range ids {
		ids[i] = uuid.New()
	}

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			assert.NoError(t, env.coord.ConnectBroker(ctx, brokerSettings(fmt.Sprintf("b%d", i)), id))
			if i%2 == 0 {
				assert.NoError(t, env.coord.DisconnectBroker(ctx, id))
			}
		}(i, id)
	}
	wg.Wait()

	var want []uuid.UUID
	for i, id := range ids {
		if i%2 == 1 {
			want = append(want, id)
		}
	}
	assert.ElementsMatch(t, want, env.coord.Brokers())
	assert.Equal(t, n+n/2, env.coord.eventLogQueue.Len())
}

func TestConcurrentPublishesAllRecorded(t *testing.T) {
	env := newTestEnv(t, Config{})

	const n = 200
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.True(t, env.coord.ProceedPublish(context.Background(), publishContext(fmt.Sprintf("c%d", i), "t/1"), uuid.New()))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, n, env.coord.publishQueue.Len())
	assert.Equal(t, uint64(n), statValue(t, env.coord, "admissions_accepted"))
}

func TestClosedCoordinator(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	require.NoError(t, env.coord.Close(ctx))
	require.NoError(t, env.coord.Close(ctx))

	assert.ErrorIs(t, env.coord.ConnectBroker(ctx, brokerSettings("b1"), uuid.New()), ErrDeactivated)
	assert.ErrorIs(t, env.coord.DisconnectBroker(ctx, uuid.New()), ErrDeactivated)
	assert.ErrorIs(t, env.coord.ProceedDisconnect(ctx, broker.DisconnectContext{ClientID: "c1"}), ErrDeactivated)
	assert.ErrorIs(t, env.coord.ProceedUnsubscription(ctx, broker.UnsubscriptionContext{ClientID: "c1", Topic: "t"}), ErrDeactivated)

	assert.False(t, env.coord.ProceedConnect(ctx, broker.ConnectContext{ClientID: "c1"}))
	assert.False(t, env.coord.ProceedPublish(ctx, publishContext("c1", "t/1"), uuid.New()))
	assert.False(t, env.coord.ProceedSubscription(ctx, broker.SubscriptionContext{ClientID: "c1", TopicFilter: "t"}))

	assert.Zero(t, env.coord.eventLogQueue.Len())
	assert.Zero(t, env.coord.publishQueue.Len())
}

func TestStats(t *testing.T) {
	env := newTestEnv(t, Config{ClusterID: "east"})
	ctx := context.Background()

	require.NoError(t, env.coord.ConnectBroker(ctx, brokerSettings("b1"), uuid.New()))
	require.True(t, env.coord.ProceedPublish(ctx, publishContext("c1", "t/1"), uuid.New()))

	s := env.coord.Stats()
	assert.Equal(t, "east", s["cluster"])
	assert.Equal(t, 1, s["brokers"])
	assert.Equal(t, 1, s["pending_event_logs"])
	assert.Equal(t, 1, s["pending_publish_messages"])
	assert.Equal(t, uint64(2), s["records_enqueued"])
}

func TestReadSideDelegatesToRepositories(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	require.NoError(t, env.coord.ConnectBroker(ctx, brokerSettings("b1"), uuid.New()))
	require.True(t, env.coord.ProceedPublish(ctx, publishContext("c1", "t/1"), uuid.New()))
	require.NoError(t, env.coord.flush(ctx))

	logs, err := env.coord.EventLogs(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	msgs, err := env.coord.PublishMessages(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}
