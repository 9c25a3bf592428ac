package transport

// Outbound event names. These are the wire contract; clients match on them
// verbatim.
const (
	EventChatMessage        = "chat:message"
	EventChatMessageSent    = "chat:message:sent"
	EventChatMessageDeleted = "chat:message:deleted"
	EventChatMessagePinned  = "chat:message:pinned"
	EventChatUserModerated  = "chat:user:moderated"
	EventChatTyping         = "chat:user:typing"
	EventChatStoppedTyping  = "chat:user:stopped-typing"
	EventChatHistory        = "chat:history"
	EventChatSlowMode       = "chat:slow-mode"
	EventChatReaction       = "chat:react"
	EventChatCommandResult  = "chat:command:result"
	EventViewerJoined       = "stream:viewer:joined"
	EventViewerLeft         = "stream:viewer:left"
	EventStreamWentLive     = "stream:went-live"
	EventStreamEnded        = "stream:ended"
	EventError              = "error"
	EventPong               = "pong"
)

// Error codes carried in the error event's data.code field.
const (
	CodeValidation   = "VALIDATION_ERROR"
	CodeRateLimit    = "RATE_LIMIT_EXCEEDED"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeNotFound     = "NOT_FOUND"
	CodeSlowMode     = "SLOW_MODE"
	CodeModerated    = "MODERATED"
	CodeBlocked      = "SECURITY_BLOCK"
	CodeInternal     = "INTERNAL_ERROR"
)
