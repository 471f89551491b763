// Package natsbus carries inbound review turns between the webhook API and
// the ingestor over a NATS subject.
package natsbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"voice_review/internal/adapters/observability"
	"voice_review/internal/domain"
)

type Client struct {
	conn    *nats.Conn
	subject string
	subs    []*nats.Subscription
}

func Connect(ctx context.Context, url, subject string) (*Client, error) {
	opts := []nats.Option{
		nats.Name("voice-review"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("nats reconnected")
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &Client{conn: nc, subject: subject}, nil
}

// Dispatch publishes evt; transports treat it as fire-and-forget.
func (c *Client) Dispatch(evt domain.InboundEvent) {
	if err := c.Publish(evt); err != nil {
		log.Error().Err(err).Str("sender", observability.MaskSender(evt.Sender)).Msg("publish inbound event failed")
	}
}

func (c *Client) Publish(evt domain.InboundEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := c.conn.Publish(c.subject, payload); err != nil {
		observability.ObserveBus("publish", "error")
		return err
	}
	observability.ObserveBus("publish", "ok")
	return nil
}

// Consume forwards every decodable event on the subject to d.
func (c *Client) Consume(d domain.Dispatcher) error {
	sub, err := c.conn.Subscribe(c.subject, func(msg *nats.Msg) {
		evt, err := DecodeEvent(msg.Data)
		if err != nil {
			observability.ObserveBus("consume", "malformed")
			log.Warn().Err(err).Str("subject", msg.Subject).Msg("dropping malformed event")
			return
		}
		observability.ObserveBus("consume", "ok")
		d.Dispatch(evt)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", c.subject, err)
	}
	c.subs = append(c.subs, sub)
	log.Info().Str("subject", c.subject).Msg("subscribed")
	return nil
}

func DecodeEvent(data []byte) (domain.InboundEvent, error) {
	var evt domain.InboundEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return domain.InboundEvent{}, fmt.Errorf("decode event: %w", err)
	}
	if strings.TrimSpace(evt.Sender) == "" {
		return domain.InboundEvent{}, errors.New("event has no sender")
	}
	switch evt.Kind {
	case domain.TurnVoice:
		if evt.AudioRef == "" {
			return domain.InboundEvent{}, errors.New("voice event has no audio ref")
		}
	case domain.TurnText:
	default:
		return domain.InboundEvent{}, fmt.Errorf("unknown event kind %q", evt.Kind)
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	return evt, nil
}

func (c *Client) Close() {
	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	_ = c.conn.Drain()
}
