package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

const flushTimeout = 2 * time.Second

// NATSPublisher sends events as JSON over a NATS connection.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
	logger  zerolog.Logger
}

// NewNATSPublisher connects to natsURL. Events go to subjects under subject.
func NewNATSPublisher(natsURL, subject string, logger zerolog.Logger) (*NATSPublisher, error) {
	conn, err := nats.Connect(natsURL,
		nats.Name("unity-actor"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", natsURL, err)
	}
	return &NATSPublisher{conn: conn, subject: subject, logger: logger}, nil
}

// Close drains buffered events and closes the connection.
func (n *NATSPublisher) Close() {
	if n.conn == nil {
		return
	}
	if err := n.conn.FlushTimeout(flushTimeout); err != nil {
		n.logger.Warn().Err(err).Msg("Failed to flush NATS connection")
	}
	n.conn.Close()
}

func (n *NATSPublisher) PublishEpisode(ctx context.Context, event EpisodeEvent) error {
	return n.publish(ctx, event, EpisodeSubject(n.subject))
}

// PublishRunStatus sends event to the base subject. Failed runs are repeated
// on <subject>.error.
func (n *NATSPublisher) PublishRunStatus(ctx context.Context, event RunStatusEvent) error {
	subjects := []string{n.subject}
	if key := RoutingKey(n.subject, event); key != "" {
		subjects = append(subjects, key)
	}
	return n.publish(ctx, event, subjects...)
}

func (n *NATSPublisher) publish(ctx context.Context, payload any, subjects ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	for _, subject := range subjects {
		if err := n.conn.Publish(subject, data); err != nil {
			return fmt.Errorf("publish to %s: %w", subject, err)
		}
		n.logger.Debug().Str("subject", subject).Int("bytes", len(data)).Msg("Published event")
	}
	return nil
}

// EpisodeSubject is the subject episode events go to.
func EpisodeSubject(base string) string {
	return base + ".episodes"
}

// RoutingKey returns the extra subject a run status goes to, if any.
func RoutingKey(base string, event RunStatusEvent) string {
	if event.State == RunFailed {
		return base + ".error"
	}
	return ""
}
