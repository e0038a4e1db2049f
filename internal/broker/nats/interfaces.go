package nats

// Conn is the part of *nats.Conn the bridge uses
type Conn interface {
	Publish(subject string, data []byte) error
	IsConnected() bool
	Close()
}
