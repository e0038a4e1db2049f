package mqtt

import (
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ClientFactory builds the paho client used for one peer delivery
type ClientFactory func(opts *mqtt.ClientOptions) mqtt.Client

// DefaultClientFactory creates real paho clients
func DefaultClientFactory(opts *mqtt.ClientOptions) mqtt.Client {
	return mqtt.NewClient(opts)
}
