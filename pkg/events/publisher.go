// Package events broadcasts engine lifecycle events over a pub socket so
// downstream alerting and narrative subsystems can react without polling:
// CPT approvals, network compilations, completed evaluations.
package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.nanomsg.org/mangos/v3"
	"go.nanomsg.org/mangos/v3/protocol/pub"
	"go.nanomsg.org/mangos/v3/protocol/sub"

	// Register all transports (tcp, ipc, inproc, ws)
	_ "go.nanomsg.org/mangos/v3/transport/all"

	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/logging"
)

// Topic prefixes frame every message so subscribers can filter at the
// socket level.
const (
	TopicCPTApproved      = "cpt.approved"
	TopicCPTRegistered    = "cpt.registered"
	TopicNetworkCompiled  = "network.compiled"
	TopicEvaluationScored = "evaluation.scored"
)

// Envelope is the wire shape of one event: topic, timestamp and a
// topic-specific payload.
type Envelope struct {
	Topic     string         `json:"topic"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload"`
}

// Publisher owns a pub socket bound to one address. Publish is safe for
// concurrent use; a publisher with no subscribers drops messages, which
// is the intended pub/sub contract.
type Publisher struct {
	sock   mangos.Socket
	logger logging.Logger
	mu     sync.Mutex
	closed bool
}

// NewPublisher binds a pub socket to addr, e.g. "tcp://0.0.0.0:9451" or
// "inproc://korinsic-events".
func NewPublisher(addr string, logger logging.Logger) (*Publisher, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	sock, err := pub.NewSocket()
	if err != nil {
		return nil, fmt.Errorf("create pub socket: %w", err)
	}
	if err := sock.Listen(addr); err != nil {
		sock.Close()
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	logger.Info("event publisher listening", logging.String("addr", addr))
	return &Publisher{sock: sock, logger: logger}, nil
}

// Publish frames and sends one event. Messages are "topic|json" so
// subscribers can filter on the topic prefix.
func (p *Publisher) Publish(topic string, payload map[string]any) error {
	env := Envelope{
		Topic:     topic,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", topic, err)
	}
	msg := append(append([]byte(topic), '|'), data...)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("event publisher closed")
	}
	if err := p.sock.Send(msg); err != nil {
		return fmt.Errorf("publish event %s: %w", topic, err)
	}
	return nil
}

// Close shuts the socket down.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.sock.Close()
}

// Subscriber receives events matching a topic prefix. It exists for the
// operator tooling and for tests; production consumers live in other
// services.
type Subscriber struct {
	sock mangos.Socket
}

// NewSubscriber dials the publisher and subscribes to the topic prefix.
// An empty prefix receives everything.
func NewSubscriber(addr, topicPrefix string) (*Subscriber, error) {
	sock, err := sub.NewSocket()
	if err != nil {
		return nil, fmt.Errorf("create sub socket: %w", err)
	}
	if err := sock.Dial(addr); err != nil {
		sock.Close()
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	if err := sock.SetOption(mangos.OptionSubscribe, []byte(topicPrefix)); err != nil {
		sock.Close()
		return nil, fmt.Errorf("subscribe %q: %w", topicPrefix, err)
	}
	return &Subscriber{sock: sock}, nil
}

// SetDeadline bounds how long Next blocks.
func (s *Subscriber) SetDeadline(d time.Duration) error {
	return s.sock.SetOption(mangos.OptionRecvDeadline, d)
}

// Next blocks for the next matching event.
func (s *Subscriber) Next() (*Envelope, error) {
	raw, err := s.sock.Recv()
	if err != nil {
		return nil, err
	}
	for i, b := range raw {
		if b == '|' {
			var env Envelope
			if err := json.Unmarshal(raw[i+1:], &env); err != nil {
				return nil, fmt.Errorf("decode event: %w", err)
			}
			return &env, nil
		}
	}
	return nil, fmt.Errorf("malformed event frame")
}

// Close shuts the socket down.
func (s *Subscriber) Close() error {
	return s.sock.Close()
}
