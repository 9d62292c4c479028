package mqtt

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/lluppes/pikeypad/internal/keypad"
)

// DefaultBufferSize is how many messages are held while disconnected.
const DefaultBufferSize = 100

// DefaultClientID identifies the daemon to the broker.
const DefaultClientID = "keypad-monitor"

// client is the subset of paho.Client used by RealPublisher.
type client interface {
	Connect() paho.Token
	IsConnectionOpen() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// Options configures a RealPublisher.
type Options struct {
	Broker     string // e.g. "tcp://localhost:1883"
	ClientID   string
	BufferSize int
}

// RealPublisher publishes to an actual MQTT broker. Publish and
// PublishSystem only enqueue; a single sender goroutine talks to the broker,
// so callers on GPIO event goroutines never wait on the network. Messages
// that cannot be sent, or that arrive while the queue is full, are kept in a
// ring buffer and replayed, in order, once the client (re)connects.
type RealPublisher struct {
	client  client
	topic   string
	timeout time.Duration

	queue chan outgoing
	done  chan struct{}

	closeMu sync.RWMutex
	closed  bool

	// sendMu serialises broker publishes between the sender and onConnect.
	sendMu    sync.Mutex
	connected bool // set after the first successful connect

	bufMu sync.Mutex
	buf   *ringBuffer
}

// outgoing is a queued message, or a flush marker when flushed is set.
type outgoing struct {
	msg     bufferedMsg
	flushed chan struct{}
}

// ErrPublisherClosed is returned when publishing after Close.
var ErrPublisherClosed = errors.New("mqtt: publisher closed")

// NewRealPublisher creates a publisher for the given broker. The connection
// is established in the background; it does not fail if the broker is down.
func NewRealPublisher(o Options) (*RealPublisher, error) {
	if o.Broker == "" {
		return nil, fmt.Errorf("no broker configured")
	}
	if o.ClientID == "" {
		o.ClientID = DefaultClientID
	}
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultBufferSize
	}

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "OFFLINE",
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	var p *RealPublisher
	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(TopicSystem, string(will), 1, true).
		SetOnConnectHandler(func(paho.Client) { p.onConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		})

	c := paho.NewClient(opts)
	p = newPublisher(c, o.BufferSize)
	// With ConnectRetry the token only completes once connected.
	c.Connect()
	return p, nil
}

// newPublisher starts the sender goroutine. The queue and the ring buffer
// both hold bufferSize messages.
func newPublisher(c client, bufferSize int) *RealPublisher {
	if bufferSize < 1 {
		bufferSize = 1
	}
	p := &RealPublisher{
		client:  c,
		topic:   Topic,
		timeout: 5 * time.Second,
		queue:   make(chan outgoing, bufferSize),
		done:    make(chan struct{}),
		buf:     newRingBuffer(bufferSize),
	}
	go p.run()
	return p
}

// Publish queues a key event for the MQTT broker.
func (p *RealPublisher) Publish(event keypad.KeyEvent) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 0 (at-most-once), not retained
	return p.enqueue(bufferedMsg{topic: p.topic, payload: payload})
}

// PublishSystem queues a system lifecycle event for the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) so lifecycle events survive a flaky link
	return p.enqueue(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

// enqueue never blocks: a full queue spills into the ring buffer.
func (p *RealPublisher) enqueue(msg bufferedMsg) error {
	p.closeMu.RLock()
	defer p.closeMu.RUnlock()

	if p.closed {
		return ErrPublisherClosed
	}
	select {
	case p.queue <- outgoing{msg: msg}:
	default:
		p.hold(msg)
	}
	return nil
}

func (p *RealPublisher) run() {
	defer close(p.done)
	for out := range p.queue {
		if out.flushed != nil {
			close(out.flushed)
			continue
		}
		p.deliver(out.msg)
	}
}

func (p *RealPublisher) deliver(msg bufferedMsg) {
	p.sendMu.Lock()
	defer p.sendMu.Unlock()

	if !p.client.IsConnectionOpen() {
		p.hold(msg)
		return
	}
	if err := p.publishLocked(msg); err != nil {
		log.Printf("mqtt: %v, buffering", err)
		p.hold(msg)
	}
}

func (p *RealPublisher) hold(msg bufferedMsg) {
	p.bufMu.Lock()
	p.buf.push(msg)
	p.bufMu.Unlock()
}

func (p *RealPublisher) publishLocked(msg bufferedMsg) error {
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("publish %s: timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", msg.topic, err)
	}
	return nil
}

// flush waits until every message queued before the call was handled.
func (p *RealPublisher) flush() {
	ch := make(chan struct{})
	p.closeMu.RLock()
	if p.closed {
		p.closeMu.RUnlock()
		return
	}
	p.queue <- outgoing{flushed: ch}
	p.closeMu.RUnlock()
	<-ch
}

// onConnect replays buffered messages and, after a reconnect, announces it.
// It runs on the paho client goroutine.
func (p *RealPublisher) onConnect() {
	p.sendMu.Lock()
	reconnect := p.connected
	p.connected = true
	p.bufMu.Lock()
	msgs := p.buf.drainAll()
	p.bufMu.Unlock()
	for i, msg := range msgs {
		if err := p.publishLocked(msg); err != nil {
			log.Printf("mqtt: replay stopped after %d of %d messages: %v", i, len(msgs), err)
			for _, rest := range msgs[i:] {
				p.hold(rest)
			}
			break
		}
	}
	p.sendMu.Unlock()

	if len(msgs) > 0 {
		log.Printf("mqtt: connected, replayed %d buffered messages", len(msgs))
	} else {
		log.Printf("mqtt: connected")
	}

	if reconnect {
		if err := p.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"}); err != nil {
			log.Printf("mqtt: publish RECONNECTED: %v", err)
		}
	}
}

// IsConnected reports whether the broker connection is currently up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.bufMu.Lock()
	defer p.bufMu.Unlock()
	return p.buf.len()
}

// Close sends what is still queued, then disconnects from the broker.
// It is safe to call more than once.
func (p *RealPublisher) Close() error {
	p.closeMu.Lock()
	if p.closed {
		p.closeMu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.closeMu.Unlock()

	<-p.done
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
