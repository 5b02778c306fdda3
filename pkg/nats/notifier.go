package nats

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/fleetoms/fleet/pkg/types"
)

// Notifier publishes fleet alerts and risk events over NATS. Delivery is
// fire-and-forget: publish failures are logged, never propagated to the
// component that raised the alert.
type Notifier struct {
	conn   *nats.Conn
	logger *logrus.Entry
	prefix string
}

// Config holds NATS notifier configuration
type Config struct {
	URL           string
	ClientID      string
	SubjectPrefix string
}

// NewNotifier connects to NATS and returns a notifier. The connection
// reconnects indefinitely in the background.
func NewNotifier(config *Config) (*Notifier, error) {
	logger := logrus.WithField("component", "nats-notifier")

	if config.SubjectPrefix == "" {
		config.SubjectPrefix = "fleet"
	}

	opts := []nats.Option{
		nats.Name(config.ClientID),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Errorf("NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected")
		}),
	}

	conn, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &Notifier{
		conn:   conn,
		logger: logger,
		prefix: config.SubjectPrefix,
	}, nil
}

// Notify publishes an alert to <prefix>.alerts.<priority>.<event_type>.
func (n *Notifier) Notify(alert *types.Alert) error {
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}

	subject := fmt.Sprintf("%s.alerts.%s.%s", n.prefix, alert.Priority, alert.EventType)
	if err := n.publish(subject, alert); err != nil {
		n.logger.Errorf("failed to publish alert %s: %v", alert.EventType, err)
		return err
	}
	return nil
}

// PublishRiskEvent publishes a risk event to <prefix>.events.risk.
func (n *Notifier) PublishRiskEvent(event *types.RiskEvent) error {
	subject := fmt.Sprintf("%s.events.risk", n.prefix)
	if err := n.publish(subject, event); err != nil {
		n.logger.Errorf("failed to publish risk event %s: %v", event.Type, err)
		return err
	}
	return nil
}

func (n *Notifier) publish(subject string, data interface{}) error {
	msg, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := n.conn.Publish(subject, msg); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	n.logger.Debugf("published to %s", subject)
	return nil
}

// Close drains and closes the NATS connection.
func (n *Notifier) Close() {
	if n.conn != nil {
		n.conn.Close()
	}
}
