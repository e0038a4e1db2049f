// Package broker holds the types shared by everything that talks about
// cluster members and the protocol events they report.
package broker

import (
	"context"
	"fmt"
	"net"
	"strconv"
)

// ConnectionSettings describes how to reach one peer broker for replication
type ConnectionSettings struct {
	ClientID     string `json:"clientId"`
	Host         string `json:"host"`
	Port         int    `json:"port"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	CleanSession bool   `json:"cleanSession"`
	UseTLS       bool   `json:"useTls"`
}

// Address returns the paho server URL for the settings
func (s ConnectionSettings) Address() string {
	scheme := "tcp"
	if s.UseTLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s", scheme, net.JoinHostPort(s.Host, strconv.Itoa(s.Port)))
}

// String omits credentials
func (s ConnectionSettings) String() string {
	return fmt.Sprintf("{ClientID: %s, Address: %s, Username: %s, CleanSession: %t}",
		s.ClientID, s.Address(), s.Username, s.CleanSession)
}

// ConnectContext is reported when a client asks to connect
type ConnectContext struct {
	ClientID     string `json:"clientId"`
	Endpoint     string `json:"endpoint"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	CleanSession bool   `json:"cleanSession"`
}

// PublishContext is reported for every publish a client sends
type PublishContext struct {
	ClientID string `json:"clientId"`
	Topic    string `json:"topic"`
	Payload  []byte `json:"payload"`
	QoS      byte   `json:"qos"`
	Retain   bool   `json:"retain"`
}

// Message returns the part of the publish that is replicated to peers
func (p PublishContext) Message() Message {
	return Message{
		Topic:   p.Topic,
		Payload: p.Payload,
		QoS:     p.QoS,
		Retain:  p.Retain,
	}
}

// SubscriptionContext is reported when a client subscribes to a filter
type SubscriptionContext struct {
	ClientID    string `json:"clientId"`
	TopicFilter string `json:"topicFilter"`
	QoS         byte   `json:"qos"`
}

// UnsubscriptionContext is reported after a client unsubscribed
type UnsubscriptionContext struct {
	ClientID string `json:"clientId"`
	Topic    string `json:"topic"`
}

// DisconnectType tells how a client connection ended
type DisconnectType string

const (
	DisconnectTypeClean    DisconnectType = "Clean"
	DisconnectTypeNotClean DisconnectType = "NotClean"
	DisconnectTypeTakeover DisconnectType = "Takeover"
)

// DisconnectContext is reported after a client disconnected
type DisconnectContext struct {
	ClientID       string         `json:"clientId"`
	DisconnectType DisconnectType `json:"disconnectType"`
}

// Message is what a peer broker receives when a publish is replicated
type Message struct {
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool
}

// Publisher delivers one message to one peer broker
type Publisher interface {
	Publish(ctx context.Context, settings ConnectionSettings, msg Message) error
}
