package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/injector-bench/internal/logic"
)

// bufferCapacity bounds the messages held while the broker is unreachable.
const bufferCapacity = 256

// RealPublisher publishes to an actual MQTT broker and forwards commands
// received on TopicCommand.
type RealPublisher struct {
	client   paho.Client
	commands chan<- logic.Command

	mu        sync.Mutex
	buf       *ringBuffer
	connected bool
	everUp    bool
}

// NewRealPublisher starts connecting to the given broker in the background.
// Messages published before the first connection, or during an outage, are
// buffered and replayed on connect. commands may be nil to disable remote control.
func NewRealPublisher(broker, clientID string, commands chan<- logic.Command) *RealPublisher {
	p := &RealPublisher{
		commands: commands,
		buf:      newRingBuffer(bufferCapacity),
	}

	will, _ := FormatSystemPayload(SystemEvent{Event: "OFFLINE", Reason: "connection lost"})
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(TopicSystem, string(will), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)

	p.client = paho.NewClient(opts)
	p.client.Connect()
	return p
}

func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	reconnect := p.everUp
	p.connected = true
	p.everUp = true
	pending := p.buf.drainAll()
	p.mu.Unlock()

	log.Printf("[mqtt] connected")

	if p.commands != nil {
		if tok := c.Subscribe(TopicCommand, 1, p.handleCommand); tok.WaitTimeout(5*time.Second) && tok.Error() != nil {
			log.Printf("[mqtt] subscribe %s: %v", TopicCommand, tok.Error())
		}
	}

	if reconnect {
		payload, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED", Retained: true})
		c.Publish(TopicSystem, 1, true, payload)
	}

	if len(pending) > 0 {
		log.Printf("[mqtt] replaying %d buffered messages", len(pending))
	}
	for _, m := range pending {
		tok := c.Publish(m.topic, m.qos, m.retained, m.payload)
		if !tok.WaitTimeout(5 * time.Second) {
			log.Printf("[mqtt] replay to %s timed out", m.topic)
		}
	}
}

func (p *RealPublisher) onConnectionLost(_ paho.Client, err error) {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	log.Printf("[mqtt] connection lost: %v", err)
}

func (p *RealPublisher) handleCommand(_ paho.Client, msg paho.Message) {
	cmd, err := ParseCommand(msg.Payload())
	if err != nil {
		log.Printf("[mqtt] %v", err)
		return
	}
	select {
	case p.commands <- cmd:
		log.Printf("[mqtt] %s", cmd)
	default:
		log.Printf("[mqtt] control loop busy, dropped %s", cmd)
	}
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func (p *RealPublisher) publish(topic string, qos byte, retained bool, payload []byte) error {
	p.mu.Lock()
	if !p.connected {
		p.buf.push(bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained})
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish to %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Publish sends a session event to the MQTT broker.
func (p *RealPublisher) Publish(event SessionEvent) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 0 (at-most-once), not retained
	return p.publish(Topic, 0, false, payload)
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 for lifecycle events so SHUTDOWN is delivered
	return p.publish(TopicSystem, 1, event.Retained, payload)
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
