package mqtt

import (
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MockToken implements mqtt.Token for testing
type MockToken struct {
	err  error
	done chan struct{}
}

// NewMockToken returns a token that is already complete
func NewMockToken(err error) *MockToken {
	t := &MockToken{
		err:  err,
		done: make(chan struct{}),
	}
	close(t.done)
	return t
}

// NewPendingToken returns a token that never completes
func NewPendingToken() *MockToken {
	return &MockToken{done: make(chan struct{})}
}

func (t *MockToken) Wait() bool {
	<-t.done
	return true
}

func (t *MockToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *MockToken) Error() error          { return t.err }
func (t *MockToken) Done() <-chan struct{} { return t.done }

type publishCall struct {
	topic    string
	qos      byte
	retained bool
	payload  interface{}
}

// MockClient implements mqtt.Client for testing
type MockClient struct {
	opts         *mqtt.ClientOptions
	connectToken mqtt.Token
	publishToken mqtt.Token

	mu           sync.Mutex
	connected    bool
	publishes    []publishCall
	disconnected bool
	quiesce      uint
}

func NewMockClient(opts *mqtt.ClientOptions) *MockClient {
	return &MockClient{
		opts:         opts,
		connectToken: NewMockToken(nil),
		publishToken: NewMockToken(nil),
	}
}

func (m *MockClient) Connect() mqtt.Token {
	m.mu.Lock()
	m.connected = m.connectToken.Error() == nil
	m.mu.Unlock()
	return m.connectToken
}

func (m *MockClient) Disconnect(quiesce uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	m.disconnected = true
	m.quiesce = quiesce
}

func (m *MockClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishes = append(m.publishes, publishCall{topic: topic, qos: qos, retained: retained, payload: payload})
	return m.publishToken
}

func (m *MockClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	return NewMockToken(nil)
}

func (m *MockClient) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	return NewMockToken(nil)
}

func (m *MockClient) Unsubscribe(topics ...string) mqtt.Token { return NewMockToken(nil) }

func (m *MockClient) AddRoute(topic string, callback mqtt.MessageHandler) {}

func (m *MockClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockClient) IsConnectionOpen() bool { return m.IsConnected() }

func (m *MockClient) OptionsReader() mqtt.ClientOptionsReader { return mqtt.ClientOptionsReader{} }

// mockFactory records every client it creates
type mockFactory struct {
	mu      sync.Mutex
	clients []*MockClient
	setup   func(*MockClient)
}

func (f *mockFactory) newClient(opts *mqtt.ClientOptions) mqtt.Client {
	c := NewMockClient(opts)
	if f.setup != nil {
		f.setup(c)
	}
	f.mu.Lock()
	f.clients = append(f.clients, c)
	f.mu.Unlock()
	return c
}

func (f *mockFactory) created() []*MockClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*MockClient, len(f.clients))
	copy(out, f.clients)
	return out
}
