// Package events publishes consensus snapshots to NATS so map UIs can
// subscribe to live positions instead of polling.
package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"

	"buspulse.openmobility.org/internal/logging"
	"buspulse.openmobility.org/internal/models"
)

// NATSPublisher pushes one message per applied merge on the subject
// "buspulse.position.<busId>".
type NATSPublisher struct {
	nc     *nats.Conn
	logger *slog.Logger
}

// NewNATSPublisher connects to the given NATS server.
func NewNATSPublisher(url string, logger *slog.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("buspulse-consensus"),
		nats.DisconnectHandler(func(_ *nats.Conn) {
			logging.LogOperation(logger, "nats_disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logging.LogOperation(logger, "nats_reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("error connecting to NATS: %w", err)
	}
	return &NATSPublisher{nc: nc, logger: logger}, nil
}

// Close drains and closes the connection.
func (p *NATSPublisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
		p.nc.Close()
	}
}

// PublishSnapshot implements consensus.SnapshotPublisher.
func (p *NATSPublisher) PublishSnapshot(snapshot models.BusLocationSnapshot) error {
	subject := fmt.Sprintf("buspulse.position.%s", subjectToken(snapshot.BusID.String()))
	b, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return p.nc.Publish(subject, b)
}

// subjectToken sanitizes an ID for use as a NATS subject token.
func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
