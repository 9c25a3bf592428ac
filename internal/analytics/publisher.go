// Package analytics forwards advisory signals from the realtime core to the
// analytics collaborator over NATS. The aggregation batch jobs consume
// these subjects; nothing here is load-bearing for chat correctness.
package analytics

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/lunastream/realtime/internal/chat"
)

// Subjects published by the realtime core.
const (
	SubjectViewerJoined   = "live.room.viewer.joined"
	SubjectViewerLeft     = "live.room.viewer.left"
	SubjectMessageCreated = "live.chat.message.created"
	SubjectMessageDeleted = "live.chat.message.deleted"
	SubjectUserModerated  = "live.chat.user.moderated"
	SubjectStreamStats    = "live.stream.stats"
)

// Publisher emits events fire-and-forget. Publish never blocks the
// broadcast path: NATS buffers in-process and publish errors are logged,
// not returned.
type Publisher struct {
	nc     *nats.Conn
	logger zerolog.Logger
}

// Connect dials NATS with reconnect handling suited to a long-lived server.
func Connect(url string, logger zerolog.Logger) (*Publisher, error) {
	log := logger.With().Str("component", "analytics").Logger()

	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, err
	}

	log.Info().Str("url", url).Msg("Connected to NATS")
	return &Publisher{nc: nc, logger: log}, nil
}

// Close drains pending publishes and closes the connection.
func (p *Publisher) Close() {
	if p == nil || p.nc == nil {
		return
	}
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
	}
}

func (p *Publisher) publish(subject string, payload any) {
	if p == nil || p.nc == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error().Err(err).Str("subject", subject).Msg("Failed to marshal analytics event")
		return
	}
	if err := p.nc.Publish(subject, data); err != nil {
		p.logger.Warn().Err(err).Str("subject", subject).Msg("Failed to publish analytics event")
	}
}

// ViewerJoined implements room.Signals. The count is advisory; the
// authoritative viewer count lives in external storage.
func (p *Publisher) ViewerJoined(roomID string, viewers int) {
	p.publish(SubjectViewerJoined, map[string]any{
		"roomId":  roomID,
		"viewers": viewers,
		"at":      time.Now().UTC(),
	})
}

// ViewerLeft implements room.Signals.
func (p *Publisher) ViewerLeft(roomID string, viewers int) {
	p.publish(SubjectViewerLeft, map[string]any{
		"roomId":  roomID,
		"viewers": viewers,
		"at":      time.Now().UTC(),
	})
}

// MessageCreated implements chat.Events.
func (p *Publisher) MessageCreated(m *chat.Message) {
	p.publish(SubjectMessageCreated, map[string]any{
		"roomId":    m.RoomID,
		"messageId": m.ID,
		"authorId":  m.Author.ID,
		"at":        m.CreatedAt,
	})
}

// MessageDeleted implements chat.Events.
func (p *Publisher) MessageDeleted(roomID, messageID, moderatorID, reason string) {
	p.publish(SubjectMessageDeleted, map[string]any{
		"roomId":      roomID,
		"messageId":   messageID,
		"moderatorId": moderatorID,
		"reason":      reason,
		"at":          time.Now().UTC(),
	})
}

// UserModerated implements chat.Events.
func (p *Publisher) UserModerated(roomID, userID, action string, until time.Time) {
	payload := map[string]any{
		"roomId": roomID,
		"userId": userID,
		"action": action,
		"at":     time.Now().UTC(),
	}
	if !until.IsZero() {
		payload["until"] = until
	}
	p.publish(SubjectUserModerated, payload)
}

// StreamStats forwards validated broadcaster telemetry.
func (p *Publisher) StreamStats(roomID string, frameRate float64, width, height, bitrate int) {
	p.publish(SubjectStreamStats, map[string]any{
		"roomId":    roomID,
		"frameRate": frameRate,
		"width":     width,
		"height":    height,
		"bitrate":   bitrate,
		"at":        time.Now().UTC(),
	})
}
