// Package notify delivers email hook notifications. With a NATS URL
// configured every notification is published as JSON on
// <prefix>.<template>; a mail worker outside this service renders and sends
// it. Without one, notifications are only logged.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/heartmarshall/engagement-backend/internal/config"
	"github.com/heartmarshall/engagement-backend/internal/hook"
)

type publisher interface {
	Publish(subject string, data []byte) error
}

// Publisher sends notifications to NATS.
type Publisher struct {
	conn   publisher
	prefix string
	log    *slog.Logger
}

// Connect dials the configured NATS server.
func Connect(cfg config.NotifyConfig, log *slog.Logger) (*Publisher, *nats.Conn, error) {
	log = log.With("component", "notify")
	conn, err := nats.Connect(cfg.NatsURL,
		nats.Name("engagement-backend"),
		nats.Timeout(cfg.SendTimeout),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", slog.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect nats: %w", err)
	}
	return newPublisher(conn, cfg.SubjectPrefix, log), conn, nil
}

func newPublisher(conn publisher, prefix string, log *slog.Logger) *Publisher {
	return &Publisher{conn: conn, prefix: prefix, log: log}
}

// Subject returns the subject a template is published on.
func (p *Publisher) Subject(template string) string {
	return p.prefix + "." + template
}

// Notify publishes n. Publishing is fire-and-forget: the call returns once
// the message is buffered by the client.
func (p *Publisher) Notify(ctx context.Context, n hook.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification %s: %w", n.Template, err)
	}
	subject := p.Subject(n.Template)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	p.log.DebugContext(ctx, "notification published",
		slog.String("subject", subject),
		slog.String("entity_id", n.EntityID.String()),
		slog.Int("recipients", len(n.Recipients)),
	)
	return nil
}

// Logger is the notifier used when no broker is configured.
type Logger struct {
	log *slog.Logger
}

// NewLogger returns a notifier that only logs.
func NewLogger(log *slog.Logger) *Logger {
	return &Logger{log: log.With("component", "notify")}
}

// Notify logs n.
func (l *Logger) Notify(ctx context.Context, n hook.Notification) error {
	l.log.InfoContext(ctx, "notification",
		slog.String("template", n.Template),
		slog.String("entity", n.Entity),
		slog.String("entity_id", n.EntityID.String()),
		slog.Int("recipients", len(n.Recipients)),
	)
	return nil
}
