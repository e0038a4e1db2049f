package nats

import (
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"mqtt-cluster/config"
	"mqtt-cluster/internal/logger"
)

// Connect opens the NATS connection described by cfg
func Connect(cfg config.NATSConfig, log *logger.Logger) (*nats.Conn, error) {
	if len(cfg.URLs) == 0 {
		return nil, fmt.Errorf("no NATS server URLs provided")
	}

	opts := []nats.Option{
		nats.Name(cfg.ClientID),
		nats.ReconnectWait(time.Second * 2),
		nats.MaxReconnects(-1), // Unlimited reconnects
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Error("disconnected from NATS server", "error", err)
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			log.Info("reconnected to NATS server", "url", conn.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Warn("NATS connection closed")
		}),
	}

	if cfg.Username != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}

	log.Info("connecting to NATS server", "urls", cfg.URLs)

	conn, err := nats.Connect(strings.Join(cfg.URLs, ","), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS server: %w", err)
	}

	log.Info("connected to NATS server", "url", conn.ConnectedUrl())
	return conn, nil
}
