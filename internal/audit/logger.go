package audit

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type EventType string

const (
	EventSessionInit       EventType = "session_init"
	EventSessionFrozen     EventType = "session_frozen"
	EventSessionRecovered  EventType = "session_recovered"
	EventSessionTerminated EventType = "session_terminated"
	EventSignatureFailure  EventType = "signature_failure"
	EventSequenceViolation EventType = "sequence_violation"
	EventMagicLinkIssued   EventType = "magic_link_issued"
	EventMagicLinkConsumed EventType = "magic_link_consumed"
	EventRoomFull          EventType = "room_full"
	EventPeerJoined        EventType = "peer_joined"
	EventPeerLeft          EventType = "peer_left"
)

type Event struct {
	Type      EventType
	SessionID string
	RoomID    string
	Email     string
	Details   map[string]interface{}
}

func Log(event Event) {
	logger := log.With().
		Str("audit", "security").
		Str("event_type", string(event.Type)).
		Time("timestamp", time.Now()).
		Logger()

	if event.SessionID != "" {
		logger = logger.With().Str("session_id", event.SessionID).Logger()
	}
	if event.RoomID != "" {
		logger = logger.With().Str("room_id", event.RoomID).Logger()
	}
	if event.Email != "" {
		logger = logger.With().Str("email", event.Email).Logger()
	}

	logEvent := logger.Info()
	for k, v := range event.Details {
		logEvent = addField(logEvent, k, v)
	}
	logEvent.Msg("security audit event")
}

func addField(e *zerolog.Event, key string, value interface{}) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return e.Str(key, v)
	case int:
		return e.Int(key, v)
	case int64:
		return e.Int64(key, v)
	case bool:
		return e.Bool(key, v)
	default:
		return e.Interface(key, v)
	}
}
