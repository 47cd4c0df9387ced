// Package events publishes domain events after successful mutations.
// Events are fire-and-forget notifications: a failed publish is logged and never
// changes the outcome of the request that produced it.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// Subjects published by the API.
const (
	SubjectPostCreated        = "post.created"
	SubjectPostUpdated        = "post.updated"
	SubjectPostDeleted        = "post.deleted"
	SubjectUserRegistered     = "user.registered"
	SubjectUserAvatarChanged  = "user.avatar_changed"
	SubjectUserProfileUpdated = "user.profile_updated"
)

// PostEvent describes a post mutation.
type PostEvent struct {
	PostID    string `json:"post_id"`
	CreatorID string `json:"creator_id"`
	Title     string `json:"title,omitempty"`
	Category  string `json:"category,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty"`
	Timestamp string `json:"timestamp"`
}

// UserEvent describes a user mutation.
type UserEvent struct {
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	Avatar    string `json:"avatar,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Timestamp formats t the way every event carries it.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// Publisher delivers an event payload to subject.
type Publisher interface {
	Publish(subject string, payload interface{})
}

// NopPublisher drops every event. Used when NATS_URL is not configured.
type NopPublisher struct{}

// Publish does nothing.
func (NopPublisher) Publish(string, interface{}) {}

// NATSPublisher publishes JSON-encoded events on a NATS connection.
type NATSPublisher struct {
	conn   *nats.Conn
	logger logrus.FieldLogger
}

// NewNATSPublisher connects to url. The connection reconnects on its own after drops.
func NewNATSPublisher(url string, logger logrus.FieldLogger) (*NATSPublisher, error) {
	log := logger.WithField("component", "events")
	conn, err := nats.Connect(url,
		nats.Name("quill-api"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.WithError(err).Warn("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.WithField("url", c.ConnectedUrl()).Info("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	log.WithField("url", conn.ConnectedUrl()).Info("NATS connected")
	return &NATSPublisher{conn: conn, logger: log}, nil
}

// Publish encodes payload as JSON and sends it on subject.
func (p *NATSPublisher) Publish(subject string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.WithError(err).WithField("subject", subject).Error("Failed to encode event")
		return
	}
	if err := p.conn.Publish(subject, data); err != nil {
		p.logger.WithError(err).WithField("subject", subject).Warn("Failed to publish event")
	}
}

// Close flushes pending events and closes the connection.
func (p *NATSPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.logger.WithError(err).Warn("Failed to drain NATS connection")
		p.conn.Close()
	}
}
