package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"mqtt-cluster/config"
	"mqtt-cluster/internal/broker"
	"mqtt-cluster/internal/logger"
	"mqtt-cluster/internal/metrics"
)

// PeerPublisher delivers replicated messages to peer brokers over a
// dedicated connection per message.
type PeerPublisher struct {
	logger         *logger.Logger
	metrics        *metrics.Metrics
	tlsConfig      *tls.Config
	connectTimeout time.Duration
	publishTimeout time.Duration
	quiesce        uint
	newClient      ClientFactory
}

// NewPeerPublisher creates a publisher from the peer configuration
func NewPeerPublisher(cfg config.PeerConfig, log *logger.Logger, metricsService *metrics.Metrics) (*PeerPublisher, error) {
	tlsConfig, err := newTLSConfig(cfg.TLS)
	if err != nil {
		return nil, fmt.Errorf("failed to create TLS config: %w", err)
	}

	return &PeerPublisher{
		logger:         log,
		metrics:        metricsService,
		tlsConfig:      tlsConfig,
		connectTimeout: cfg.ConnectTimeoutDuration(),
		publishTimeout: cfg.PublishTimeoutDuration(),
		quiesce:        cfg.DisconnectQuiesce,
		newClient:      DefaultClientFactory,
	}, nil
}

// WithClientFactory replaces the paho client constructor
func (p *PeerPublisher) WithClientFactory(f ClientFactory) *PeerPublisher {
	p.newClient = f
	return p
}

// Publish connects to the peer, publishes msg with the same topic,
// payload, qos and retain flag, and disconnects.
func (p *PeerPublisher) Publish(ctx context.Context, settings broker.ConnectionSettings, msg broker.Message) error {
	err := p.publish(ctx, settings, msg)
	if err != nil {
		p.safeMetricsUpdate(func(m *metrics.Metrics) {
			m.IncForwards("error")
		})
		return err
	}

	p.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.IncForwards("success")
	})
	p.logger.Debug("forwarded message to peer",
		"peer", settings.Address(),
		"topic", msg.Topic,
		"payloadSize", len(msg.Payload))
	return nil
}

func (p *PeerPublisher) publish(ctx context.Context, settings broker.ConnectionSettings, msg broker.Message) error {
	client := p.newClient(clientOptions(settings, p.tlsConfig, p.connectTimeout))

	if err := waitToken(ctx, client.Connect(), p.connectTimeout); err != nil {
		return fmt.Errorf("failed to connect to peer %s: %w", settings.Address(), err)
	}
	defer client.Disconnect(p.quiesce)

	token := client.Publish(msg.Topic, msg.QoS, msg.Retain, msg.Payload)
	if err := waitToken(ctx, token, p.publishTimeout); err != nil {
		return fmt.Errorf("failed to publish to peer %s: %w", settings.Address(), err)
	}

	return nil
}

func (p *PeerPublisher) safeMetricsUpdate(update func(*metrics.Metrics)) {
	if p.metrics != nil {
		update(p.metrics)
	}
}
