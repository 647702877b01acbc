package signaling

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"recruit_proctor/internal/platform/metrics"

	"go.uber.org/zap"
)

// Broker is the pub/sub medium under the relay. Every subscriber of a
// channel receives every payload published to it.
type Broker interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (Subscription, error)
}

type Subscription interface {
	Messages() <-chan []byte
	Close() error
}

// ChannelName is the per-exam signaling channel.
func ChannelName(examID string) string {
	return "proctor-" + examID
}

type Relay struct {
	broker Broker
	log    *zap.Logger
}

func NewRelay(broker Broker, log *zap.Logger) *Relay {
	return &Relay{broker: broker, log: log}
}

// Publish stamps the message with the sender's identity and sends it to the
// exam channel. Whatever sender the client claimed is overwritten.
func (r *Relay) Publish(ctx context.Context, examID, senderID string, m Message) error {
	if senderID == "" {
		return errors.New("sender identity is required")
	}
	payload, err := Encode(WithSender(m, senderID))
	if err != nil {
		return err
	}
	if err := r.broker.Publish(ctx, ChannelName(examID), payload); err != nil {
		return fmt.Errorf("failed to publish %s to %s: %w", m.Type(), ChannelName(examID), err)
	}
	metrics.SignalMessages.WithLabelValues(string(m.Type()), "in").Inc()
	return nil
}

// Peer is one subscriber on an exam channel. Receive yields only the
// messages routed to it.
type Peer struct {
	ID     string
	ExamID string

	sub  Subscription
	out  chan Message
	done chan struct{}
	once sync.Once
}

// Join subscribes peerID to the exam channel. The peer stops when ctx is
// cancelled or Leave is called.
func (r *Relay) Join(ctx context.Context, examID, peerID string) (*Peer, error) {
	if examID == "" || peerID == "" {
		return nil, errors.New("exam and peer identity are required")
	}
	sub, err := r.broker.Subscribe(ctx, ChannelName(examID))
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", ChannelName(examID), err)
	}

	p := &Peer{
		ID:     peerID,
		ExamID: examID,
		sub:    sub,
		out:    make(chan Message, 64),
		done:   make(chan struct{}),
	}
	metrics.SignalPeers.Inc()
	go r.route(ctx, p)
	return p, nil
}

func (r *Relay) route(ctx context.Context, p *Peer) {
	defer close(p.out)
	defer p.Leave()

	in := p.sub.Messages()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.done:
			return
		case raw, ok := <-in:
			if !ok {
				return
			}
			m, err := Decode(raw)
			if err != nil {
				r.log.Debug("Dropping undecodable signaling payload", zap.String("peer_id", p.ID), zap.Error(err))
				continue
			}
			if !Deliverable(m, p.ID) {
				continue
			}
			select {
			case p.out <- m:
				metrics.SignalMessages.WithLabelValues(string(m.Type()), "out").Inc()
			case <-ctx.Done():
				return
			case <-p.done:
				return
			}
		}
	}
}

func (p *Peer) Receive() <-chan Message {
	return p.out
}

func (p *Peer) Leave() {
	p.once.Do(func() {
		close(p.done)
		p.sub.Close()
		metrics.SignalPeers.Dec()
	})
}
