// Package coordinator implements the per-cluster coordinator every broker
// process consults for client lifecycle events.
package coordinator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"mqtt-cluster/internal/broker"
	"mqtt-cluster/internal/logger"
	"mqtt-cluster/internal/metrics"
	"mqtt-cluster/internal/session"
	"mqtt-cluster/internal/stats"
	"mqtt-cluster/internal/storage"
)

const (
	DefaultWorkers       = 1
	DefaultQueueSize     = 1000
	DefaultFlushDelay    = 5 * time.Second
	DefaultFlushInterval = 20 * time.Second
)

// Operation labels used in logs and metrics
const (
	opConnect      = "connect"
	opPublish      = "publish"
	opSubscription = "subscription"

	resultAccepted = "accepted"
	resultDenied   = "denied"
	resultFault    = "fault"

	kindEventLog       = "event_log"
	kindPublishMessage = "publish_message"
)

// Config controls one coordinator
type Config struct {
	ClusterID     string
	Workers       int // mailbox workers, 1 keeps operations strictly ordered
	QueueSize     int
	FlushDelay    time.Duration
	FlushInterval time.Duration
}

func (c *Config) setDefaults() {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.FlushDelay <= 0 {
		c.FlushDelay = DefaultFlushDelay
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = DefaultFlushInterval
	}
}

// Notifier receives every batch after it was persisted
type Notifier interface {
	NotifyEventLogs(ctx context.Context, logs []storage.EventLog)
	NotifyPublishMessages(ctx context.Context, msgs []storage.PublishMessage)
}

// Repositories bundles the two record repositories
type Repositories struct {
	EventLogs       storage.EventLogRepository
	PublishMessages storage.PublishMessageRepository
}

// Option configures optional collaborators
type Option func(*Coordinator)

func WithClock(clk clock.Clock) Option {
	return func(c *Coordinator) { c.clock = clk }
}

func WithNotifier(n Notifier) Option {
	return func(c *Coordinator) { c.notifier = n }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

func WithStats(s *stats.StatsCollector) Option {
	return func(c *Coordinator) { c.stats = s }
}

// Coordinator owns the broker registry, the pending record queues and the
// flush timer of one cluster. Default operations run through an ordered
// mailbox; ProceedPublish bypasses it.
type Coordinator struct {
	cfg       Config
	sessions  session.Directory
	repos     Repositories
	publisher broker.Publisher
	notifier  Notifier
	clock     clock.Clock
	logger    *logger.Logger
	metrics   *metrics.Metrics
	stats     *stats.StatsCollector

	brokers       *broker.Registry
	eventLogQueue *Queue[storage.EventLog]
	publishQueue  *Queue[storage.PublishMessage]

	jobChan   chan func()
	wg        sync.WaitGroup
	timerStop chan struct{}
	timerDone chan struct{}

	// mu guards closed and every send on jobChan. Publishes hold it
	// shared for their whole run so they land before the final flush.
	mu     sync.RWMutex
	closed bool
}

// New creates and activates a coordinator. The first flush runs
// cfg.FlushDelay after New returns.
func New(cfg Config, sessions session.Directory, repos Repositories, publisher broker.Publisher, log *logger.Logger, opts ...Option) *Coordinator {
	cfg.setDefaults()

	c := &Coordinator{
		cfg:           cfg,
		sessions:      sessions,
		repos:         repos,
		publisher:     publisher,
		clock:         clock.New(),
		logger:        log.With("cluster", cfg.ClusterID),
		brokers:       broker.NewRegistry(),
		eventLogQueue: &Queue[storage.EventLog]{},
		publishQueue:  &Queue[storage.PublishMessage]{},
		jobChan:       make(chan func(), cfg.QueueSize),
		timerStop:     make(chan struct{}),
		timerDone:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.stats == nil {
		c.stats = stats.NewStatsCollector()
	}

	c.startWorkers()

	// Created before the goroutine starts so a mock clock sees it
	timer := c.clock.Timer(cfg.FlushDelay)
	go c.runTimer(timer)

	c.logger.Info("coordinator activated",
		"workers", cfg.Workers,
		"flushDelay", cfg.FlushDelay,
		"flushInterval", cfg.FlushInterval)

	return c
}

// ID returns the cluster identity
func (c *Coordinator) ID() string {
	return c.cfg.ClusterID
}

func (c *Coordinator) startWorkers() {
	for i := 0; i < c.cfg.Workers; i++ {
		c.wg.Add(1)
		go c.worker()
	}
}

func (c *Coordinator) worker() {
	defer c.wg.Done()

	for job := range c.jobChan {
		c.run(job)
	}
}

func (c *Coordinator) run(job func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("mailbox job panicked", "panic", r)
		}
	}()
	job()
}

// do runs fn on the mailbox and waits for its result. ctx bounds the
// wait for a mailbox slot; once queued, the job always reports back and
// skips fn if ctx is already done when it is dequeued.
func (c *Coordinator) do(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	job := func() {
		defer func() {
			if r := recover(); r != nil {
				result <- fmt.Errorf("mailbox job panicked: %v", r)
			}
		}()
		if err := ctx.Err(); err != nil {
			result <- err
			return
		}
		result <- fn()
	}

	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return ErrDeactivated
	}
	select {
	case c.jobChan <- job:
	case <-ctx.Done():
		c.mu.RUnlock()
		return ctx.Err()
	}
	c.mu.RUnlock()

	// Workers drain the mailbox even after Close, so the result always arrives
	return <-result
}

// ConnectBroker registers a peer broker and records a BrokerConnect event
func (c *Coordinator) ConnectBroker(ctx context.Context, settings *broker.ConnectionSettings, brokerID uuid.UUID) error {
	if settings == nil {
		return required("settings")
	}
	if brokerID == uuid.Nil {
		return required("brokerId")
	}
	if isBlank(settings.Host) {
		return required("settings.host")
	}
	if settings.Port <= 0 || settings.Port > 65535 {
		return &ValidationError{Field: "settings.port", Message: fmt.Sprintf("%d is out of range", settings.Port)}
	}

	s := *settings
	return c.do(ctx, func() error {
		details := fmt.Sprintf("New broker connected: BrokerId = %s.", brokerID)
		if err := c.enqueueEvent(storage.EventTypeBrokerConnect, details); err != nil {
			return err
		}
		c.brokers.Put(brokerID, s)
		c.logger.Info("broker connected", "brokerId", brokerID, "broker", s.String())
		return nil
	})
}

// DisconnectBroker unregisters a peer broker and records a BrokerDisconnect event
func (c *Coordinator) DisconnectBroker(ctx context.Context, brokerID uuid.UUID) error {
	if brokerID == uuid.Nil {
		return required("brokerId")
	}

	return c.do(ctx, func() error {
		details := fmt.Sprintf("Broker disconnected: BrokerId = %s.", brokerID)
		if err := c.enqueueEvent(storage.EventTypeBrokerDisconnect, details); err != nil {
			return err
		}
		if !c.brokers.Remove(brokerID) {
			c.logger.Warn("disconnect for unknown broker", "brokerId", brokerID)
			return nil
		}
		c.logger.Info("broker disconnected", "brokerId", brokerID)
		return nil
	})
}

// ProceedConnect asks the client's session whether it may connect
func (c *Coordinator) ProceedConnect(ctx context.Context, cc broker.ConnectContext) bool {
	var accepted bool
	err := c.do(ctx, func() error {
		accepted = c.admit(opConnect, cc.ClientID, func() (bool, error) {
			ok, err := c.sessions.Session(cc.ClientID).ProceedConnect(ctx, cc)
			if err != nil || !ok {
				return false, err
			}

			details := fmt.Sprintf("New connection: ClientId = %s, Endpoint = %s, Username = %s, CleanSession = %t.",
				cc.ClientID, cc.Endpoint, cc.Username, cc.CleanSession)
			return true, c.enqueueEvent(storage.EventTypeConnect, details)
		})
		return nil
	})
	if err != nil {
		c.admissionFault(opConnect, cc.ClientID, err)
		return false
	}
	return accepted
}

// ProceedDisconnect records a Disconnect event
func (c *Coordinator) ProceedDisconnect(ctx context.Context, dc broker.DisconnectContext) error {
	if isBlank(dc.ClientID) {
		return required("clientId")
	}

	return c.do(ctx, func() error {
		details := fmt.Sprintf("Disconnected: ClientId = %s, DisconnectType = %s.", dc.ClientID, dc.DisconnectType)
		return c.enqueueEvent(storage.EventTypeDisconnect, details)
	})
}

// ProceedPublish asks the client's session whether the publish is
// admitted, queues the history record and starts the fan-out to every
// peer except originID unless the publisher is the replication identity.
// It never waits behind the mailbox.
func (c *Coordinator) ProceedPublish(ctx context.Context, pc broker.PublishContext, originID uuid.UUID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		c.admissionFault(opPublish, pc.ClientID, ErrDeactivated)
		return false
	}

	return c.admit(opPublish, pc.ClientID, func() (bool, error) {
		s := c.sessions.Session(pc.ClientID)

		ok, err := s.ProceedPublish(ctx, pc)
		if err != nil || !ok {
			return false, err
		}

		msg, err := c.newPublishMessage(pc)
		if err != nil {
			return false, err
		}
		c.publishQueue.Enqueue(msg)
		c.recordEnqueued(kindPublishMessage)

		replication, err := s.IsReplicationUser(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to resolve replication identity: %w", err)
		}
		if !replication {
			c.fanOut(pc.Message(), originID)
		}
		return true, nil
	})
}

// ProceedSubscription asks the client's session whether it may subscribe
func (c *Coordinator) ProceedSubscription(ctx context.Context, sc broker.SubscriptionContext) bool {
	var accepted bool
	err := c.do(ctx, func() error {
		accepted = c.admit(opSubscription, sc.ClientID, func() (bool, error) {
			ok, err := c.sessions.Session(sc.ClientID).ProceedSubscription(ctx, sc)
			if err != nil || !ok {
				return false, err
			}

			details := fmt.Sprintf("New subscription: ClientId = %s, TopicFilter = %s.", sc.ClientID, sc.TopicFilter)
			return true, c.enqueueEvent(storage.EventTypeSubscription, details)
		})
		return nil
	})
	if err != nil {
		c.admissionFault(opSubscription, sc.ClientID, err)
		return false
	}
	return accepted
}

// ProceedUnsubscription records an Unsubscription event
func (c *Coordinator) ProceedUnsubscription(ctx context.Context, uc broker.UnsubscriptionContext) error {
	if isBlank(uc.ClientID) {
		return required("clientId")
	}
	if isBlank(uc.Topic) {
		return required("topic")
	}

	return c.do(ctx, func() error {
		details := fmt.Sprintf("Unsubscription: ClientId = %s, Topic = %s.", uc.ClientID, uc.Topic)
		return c.enqueueEvent(storage.EventTypeUnsubscription, details)
	})
}

// admit runs an admission decision and converts every fault into a
// denial. A panic counts as a fault.
func (c *Coordinator) admit(op, clientID string, decide func() (bool, error)) (accepted bool) {
	defer func() {
		if r := recover(); r != nil {
			c.admissionFault(op, clientID, fmt.Errorf("panic: %v", r))
			accepted = false
		}
	}()

	ok, err := decide()
	switch {
	case err != nil:
		c.admissionFault(op, clientID, err)
		return false
	case !ok:
		c.stats.IncDenied()
		c.safeMetricsUpdate(func(m *metrics.Metrics) {
			m.IncAdmissions(op, resultDenied)
		})
		return false
	default:
		c.stats.IncAccepted()
		c.safeMetricsUpdate(func(m *metrics.Metrics) {
			m.IncAdmissions(op, resultAccepted)
		})
		return true
	}
}

func (c *Coordinator) admissionFault(op, clientID string, err error) {
	c.logger.Error("admission failed",
		"operation", op,
		"clientId", clientID,
		"error", err)
	c.stats.IncFaults()
	c.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.IncAdmissions(op, resultFault)
	})
}

func (c *Coordinator) enqueueEvent(eventType storage.EventType, details string) error {
	id, err := uuid.NewRandom()
	if err != nil {
		return fmt.Errorf("failed to create event log id: %w", err)
	}

	c.eventLogQueue.Enqueue(storage.EventLog{
		ID:           id,
		EventType:    eventType,
		EventDetails: details,
		CreatedAt:    c.clock.Now(),
	})
	c.recordEnqueued(kindEventLog)
	return nil
}

func (c *Coordinator) newPublishMessage(pc broker.PublishContext) (storage.PublishMessage, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return storage.PublishMessage{}, fmt.Errorf("failed to create publish message id: %w", err)
	}

	return storage.PublishMessage{
		ID:        id,
		ClientID:  pc.ClientID,
		Topic:     pc.Topic,
		Payload:   pc.Payload,
		QoS:       pc.QoS,
		Retain:    pc.Retain,
		CreatedAt: c.clock.Now(),
	}, nil
}

func (c *Coordinator) recordEnqueued(kind string) {
	c.stats.IncEnqueued()
	c.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.IncRecordsEnqueued(kind)
	})
}

// Brokers returns the ids of the registered peer brokers
func (c *Coordinator) Brokers() []uuid.UUID {
	return c.brokers.IDs()
}

// EventLogs returns the most recent persisted audit records
func (c *Coordinator) EventLogs(ctx context.Context, limit int) ([]storage.EventLog, error) {
	return c.repos.EventLogs.ListEventLogs(ctx, limit)
}

// PublishMessages returns the most recent persisted publish records
func (c *Coordinator) PublishMessages(ctx context.Context, limit int) ([]storage.PublishMessage, error) {
	return c.repos.PublishMessages.ListPublishMessages(ctx, limit)
}

// Stats returns counters plus the current registry and queue sizes
func (c *Coordinator) Stats() map[string]interface{} {
	s := c.stats.GetStats()
	s["cluster"] = c.cfg.ClusterID
	s["brokers"] = c.brokers.Len()
	s["pending_event_logs"] = c.eventLogQueue.Len()
	s["pending_publish_messages"] = c.publishQueue.Len()
	return s
}

// reportMetrics samples gauges for the metrics collector
func (c *Coordinator) reportMetrics(m *metrics.Metrics) {
	m.SetBrokersRegistered(c.cfg.ClusterID, c.brokers.Len())
	m.SetQueueDepth(c.cfg.ClusterID, kindEventLog, c.eventLogQueue.Len())
	m.SetQueueDepth(c.cfg.ClusterID, kindPublishMessage, c.publishQueue.Len())
}

// Close stops the timer and the mailbox, then runs one final flush.
// Operations after Close fail with ErrDeactivated or a denial.
func (c *Coordinator) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.jobChan)
	c.mu.Unlock()

	close(c.timerStop)
	<-c.timerDone
	c.wg.Wait()

	err := c.flush(ctx)
	c.logger.Info("coordinator deactivated")
	return err
}

func (c *Coordinator) safeMetricsUpdate(update func(*metrics.Metrics)) {
	if c.metrics != nil {
		update(c.metrics)
	}
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
