package schema

import "time"

// Payload is a typed inbound event body. Validate sanitizes free-text fields
// in place and returns every field-level failure.
type Payload interface {
	Validate(v *Validator) ValidationErrors
}

// Numeric domain bounds for stream telemetry. Malformed telemetry must not
// reach downstream aggregates.
const (
	MaxFrameRate        = 120
	MaxResolutionWidth  = 7680
	MaxResolutionHeight = 4320
	MaxBitrateKbps      = 100000
)

// Moderation actions accepted by chat:moderate-user.
const (
	ModerationTimeout = "timeout"
	ModerationBan     = "ban"
	ModerationUnban   = "unban"
	ModerationWarn    = "warn"
)

// MaxTimeoutDuration caps chat:moderate-user timeout durations.
const MaxTimeoutDuration = 24 * time.Hour

type JoinStream struct {
	StreamID string `json:"streamId"`
}

type LeaveStream struct {
	StreamID string `json:"streamId"`
}

type SendMessage struct {
	StreamID string            `json:"streamId"`
	Content  string            `json:"content"`
	ReplyTo  string            `json:"replyTo,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type DeleteMessage struct {
	StreamID  string `json:"streamId"`
	MessageID string `json:"messageId"`
	Reason    string `json:"reason,omitempty"`
}

type ModerateUser struct {
	StreamID string `json:"streamId"`
	UserID   string `json:"userId"`
	Action   string `json:"action"`
	Reason   string `json:"reason,omitempty"`
	Duration int64  `json:"duration,omitempty"` // seconds
}

type Typing struct {
	StreamID string `json:"streamId"`
	IsTyping bool   `json:"isTyping"`
}

type GetHistory struct {
	StreamID       string `json:"streamId"`
	Limit          int    `json:"limit,omitempty"`
	Before         string `json:"before,omitempty"`
	After          string `json:"after,omitempty"`
	Cursor         string `json:"cursor,omitempty"`
	IncludeDeleted bool   `json:"includeDeleted,omitempty"`
	OrderBy        string `json:"orderBy,omitempty"`
}

type React struct {
	StreamID  string `json:"streamId"`
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
	Action    string `json:"action"` // add | remove
}

type PinMessage struct {
	StreamID  string `json:"streamId"`
	MessageID string `json:"messageId"`
	Pin       bool   `json:"pin"`
}

type SlowMode struct {
	StreamID string `json:"streamId"`
	Enabled  bool   `json:"enabled"`
	Delay    int64  `json:"delay,omitempty"` // seconds
}

// StreamStats is broadcaster telemetry. All numeric fields carry explicit
// domain bounds.
type StreamStats struct {
	StreamID  string  `json:"streamId"`
	FrameRate float64 `json:"frameRate"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	Bitrate   int     `json:"bitrate,omitempty"` // kbps
}
