// Package schema validates and sanitizes inbound event payloads before they
// reach business logic. Given an event name and a raw payload it returns
// either a typed, sanitized value or a structured validation failure; it
// never panics and has no side effects.
package schema

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// Validator holds the sanitizer policy and configurable limits.
// Safe for concurrent use.
type Validator struct {
	policy           *bluemonday.Policy
	MaxMessageLength int
	MaxReasonLength  int
	MaxEmojiLength   int
	MaxPageLimit     int
}

func NewValidator(maxMessageLength, maxPageLimit int) *Validator {
	if maxMessageLength <= 0 {
		maxMessageLength = 500
	}
	if maxPageLimit <= 0 {
		maxPageLimit = 100
	}
	return &Validator{
		policy:           bluemonday.StrictPolicy(),
		MaxMessageLength: maxMessageLength,
		MaxReasonLength:  200,
		MaxEmojiLength:   16,
		MaxPageLimit:     maxPageLimit,
	}
}

// registry maps event names to payload constructors. Events not present here
// are rejected by the dispatcher, not silently ignored.
var registry = map[string]func() Payload{
	"stream:join":         func() Payload { return &JoinStream{} },
	"stream:leave":        func() Payload { return &LeaveStream{} },
	"stream:stats":        func() Payload { return &StreamStats{} },
	"chat:send-message":   func() Payload { return &SendMessage{} },
	"chat:delete-message": func() Payload { return &DeleteMessage{} },
	"chat:moderate-user":  func() Payload { return &ModerateUser{} },
	"chat:typing":         func() Payload { return &Typing{} },
	"chat:get-history":    func() Payload { return &GetHistory{} },
	"chat:react":          func() Payload { return &React{} },
	"chat:pin-message":    func() Payload { return &PinMessage{} },
	"chat:slow-mode":      func() Payload { return &SlowMode{} },
}

// Known reports whether an event name has a registered schema.
func Known(event string) bool {
	_, ok := registry[event]
	return ok
}

// Validate decodes raw into the schema registered for event, sanitizes its
// free-text fields and checks its domain bounds. On failure the returned
// error is a ValidationErrors value carrying every failed field.
func (v *Validator) Validate(event string, raw json.RawMessage) (Payload, error) {
	ctor, ok := registry[event]
	if !ok {
		return nil, ValidationErrors{{Field: "type", Reason: fmt.Sprintf("unknown event %q", event)}}
	}

	p := ctor()
	if len(raw) > 0 {
		dec := json.NewDecoder(strings.NewReader(string(raw)))
		dec.DisallowUnknownFields()
		if err := dec.Decode(p); err != nil {
			return nil, ValidationErrors{{Field: "data", Reason: "malformed payload: " + err.Error()}}
		}
	}

	if errs := p.Validate(v); errs.Any() {
		return nil, errs
	}
	return p, nil
}

// SanitizeText strips HTML/script content, trims whitespace and bounds the
// result to maxLen runes. ok is false when nothing survives stripping.
func (v *Validator) SanitizeText(s string, maxLen int) (clean string, ok bool) {
	clean = strings.TrimSpace(v.policy.Sanitize(s))
	if clean == "" {
		return "", false
	}
	if utf8.RuneCountInString(clean) > maxLen {
		runes := []rune(clean)
		clean = string(runes[:maxLen])
	}
	return clean, true
}

func (v *Validator) requireID(errs *ValidationErrors, field, value string) {
	if strings.TrimSpace(value) == "" {
		errs.add(field, "required")
	}
}

func (p *JoinStream) Validate(v *Validator) ValidationErrors {
	var errs ValidationErrors
	v.requireID(&errs, "streamId", p.StreamID)
	return errs
}

func (p *LeaveStream) Validate(v *Validator) ValidationErrors {
	var errs ValidationErrors
	v.requireID(&errs, "streamId", p.StreamID)
	return errs
}

func (p *SendMessage) Validate(v *Validator) ValidationErrors {
	var errs ValidationErrors
	v.requireID(&errs, "streamId", p.StreamID)

	if strings.TrimSpace(p.Content) == "" {
		errs.add("content", "required")
	} else if clean, ok := v.SanitizeText(p.Content, v.MaxMessageLength); ok {
		p.Content = clean
	} else {
		errs.add("content", "empty after sanitization")
	}

	if len(p.Metadata) > 16 {
		errs.add("metadata", "too many entries")
	}
	for k, val := range p.Metadata {
		if clean, ok := v.SanitizeText(val, 200); ok {
			p.Metadata[k] = clean
		} else {
			delete(p.Metadata, k)
		}
	}
	return errs
}

func (p *DeleteMessage) Validate(v *Validator) ValidationErrors {
	var errs ValidationErrors
	v.requireID(&errs, "streamId", p.StreamID)
	v.requireID(&errs, "messageId", p.MessageID)
	if p.Reason != "" {
		if clean, ok := v.SanitizeText(p.Reason, v.MaxReasonLength); ok {
			p.Reason = clean
		} else {
			p.Reason = ""
		}
	}
	return errs
}

func (p *ModerateUser) Validate(v *Validator) ValidationErrors {
	var errs ValidationErrors
	v.requireID(&errs, "streamId", p.StreamID)
	v.requireID(&errs, "userId", p.UserID)

	switch p.Action {
	case ModerationTimeout:
		if p.Duration <= 0 {
			errs.add("duration", "required for timeout")
		} else if p.Duration > int64(MaxTimeoutDuration.Seconds()) {
			errs.add("duration", fmt.Sprintf("exceeds maximum of %d seconds", int64(MaxTimeoutDuration.Seconds())))
		}
	case ModerationBan, ModerationUnban, ModerationWarn:
		// No duration.
	case "":
		errs.add("action", "required")
	default:
		errs.add("action", fmt.Sprintf("unknown action %q", p.Action))
	}

	if p.Reason != "" {
		if clean, ok := v.SanitizeText(p.Reason, v.MaxReasonLength); ok {
			p.Reason = clean
		} else {
			p.Reason = ""
		}
	}
	return errs
}

func (p *Typing) Validate(v *Validator) ValidationErrors {
	var errs ValidationErrors
	v.requireID(&errs, "streamId", p.StreamID)
	return errs
}

func (p *GetHistory) Validate(v *Validator) ValidationErrors {
	var errs ValidationErrors
	v.requireID(&errs, "streamId", p.StreamID)
	if p.Limit < 0 {
		errs.add("limit", "must be non-negative")
	}
	if p.Limit > v.MaxPageLimit {
		errs.add("limit", fmt.Sprintf("exceeds maximum of %d", v.MaxPageLimit))
	}
	switch p.OrderBy {
	case "", "asc", "desc":
	default:
		errs.add("orderBy", `must be "asc" or "desc"`)
	}
	if p.Before != "" && p.After != "" {
		errs.add("before", "mutually exclusive with after")
	}
	if p.Cursor != "" && (p.Before != "" || p.After != "") {
		errs.add("cursor", "mutually exclusive with before and after")
	}
	return errs
}

func (p *React) Validate(v *Validator) ValidationErrors {
	var errs ValidationErrors
	v.requireID(&errs, "streamId", p.StreamID)
	v.requireID(&errs, "messageId", p.MessageID)
	if p.Emoji == "" {
		errs.add("emoji", "required")
	} else if utf8.RuneCountInString(p.Emoji) > v.MaxEmojiLength {
		errs.add("emoji", "too long")
	}
	switch p.Action {
	case "add", "remove":
	case "":
		errs.add("action", "required")
	default:
		errs.add("action", `must be "add" or "remove"`)
	}
	return errs
}

func (p *PinMessage) Validate(v *Validator) ValidationErrors {
	var errs ValidationErrors
	v.requireID(&errs, "streamId", p.StreamID)
	v.requireID(&errs, "messageId", p.MessageID)
	return errs
}

func (p *SlowMode) Validate(v *Validator) ValidationErrors {
	var errs ValidationErrors
	v.requireID(&errs, "streamId", p.StreamID)
	if p.Enabled && p.Delay <= 0 {
		errs.add("delay", "required when enabling slow mode")
	}
	if p.Delay < 0 {
		errs.add("delay", "must be non-negative")
	}
	if p.Delay > 3600 {
		errs.add("delay", "exceeds maximum of 3600 seconds")
	}
	return errs
}

func (p *StreamStats) Validate(v *Validator) ValidationErrors {
	var errs ValidationErrors
	v.requireID(&errs, "streamId", p.StreamID)
	if p.FrameRate < 0 || p.FrameRate > MaxFrameRate {
		errs.add("frameRate", fmt.Sprintf("must be in [0,%d]", MaxFrameRate))
	}
	if p.Width < 0 || p.Width > MaxResolutionWidth {
		errs.add("width", fmt.Sprintf("must be in [0,%d]", MaxResolutionWidth))
	}
	if p.Height < 0 || p.Height > MaxResolutionHeight {
		errs.add("height", fmt.Sprintf("must be in [0,%d]", MaxResolutionHeight))
	}
	if p.Bitrate < 0 || p.Bitrate > MaxBitrateKbps {
		errs.add("bitrate", fmt.Sprintf("must be in [0,%d]", MaxBitrateKbps))
	}
	return errs
}
