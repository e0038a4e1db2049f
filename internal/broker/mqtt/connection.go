package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"mqtt-cluster/config"
	"mqtt-cluster/internal/broker"
)

// ErrTimeout is returned when a paho token does not complete in time
var ErrTimeout = errors.New("mqtt operation timed out")

// clientOptions builds the options for a single short-lived connection
func clientOptions(settings broker.ConnectionSettings, tlsConfig *tls.Config, connectTimeout time.Duration) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions().
		AddBroker(settings.Address()).
		SetClientID(settings.ClientID).
		SetUsername(settings.Username).
		SetPassword(settings.Password).
		SetCleanSession(settings.CleanSession).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetConnectTimeout(connectTimeout)

	if settings.UseTLS && tlsConfig != nil {
		opts.SetTLSConfig(tlsConfig)
	}

	return opts
}

// newTLSConfig creates the TLS configuration used for peers that ask for
// TLS. The client certificate and CA are both optional.
func newTLSConfig(cfg config.TLSConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}

	if cfg.CertFile != "" || cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	if cfg.CAFile != "" {
		caCert, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}

		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		tlsConfig.RootCAs = caCertPool
	}

	return tlsConfig, nil
}

// waitToken waits for a paho token. A zero timeout waits until the
// token completes or ctx is done.
func waitToken(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	var timeoutC <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	select {
	case <-token.Done():
		return token.Error()
	case <-timeoutC:
		return ErrTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}
