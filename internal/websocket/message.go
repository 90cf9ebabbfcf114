package websocket

import (
	"time"

	"github.com/askwhyharsh/liveradar/internal/discovery"
	"github.com/askwhyharsh/liveradar/internal/tracker"
	"github.com/askwhyharsh/liveradar/pkg/validator"
)

// Inbound message types
const (
	MessageTypeStartTracking     = "start_tracking"
	MessageTypeStopTracking      = "stop_tracking"
	MessageTypePosition          = "position"
	MessageTypePositionError     = "position_error"
	MessageTypeSetInvisible      = "set_invisible"
	MessageTypeSetBackground     = "set_background"
	MessageTypeSubscribeNearby   = "subscribe_nearby"
	MessageTypeUnsubscribeNearby = "unsubscribe_nearby"
	MessageTypeLocate            = "locate"
	MessageTypePing              = "ping"
)

// Outbound message types
const (
	MessageTypeState  = "state"
	MessageTypeNearby = "nearby"
	MessageTypeError  = "error"
	MessageTypePong   = "pong"
)

// Message is sent to the client.
type Message struct {
	Type      string         `json:"type"`
	State     *tracker.State `json:"state,omitempty"`
	Nearby    *NearbyPayload `json:"nearby,omitempty"`
	Content   string         `json:"content,omitempty"`
	ErrorCode string         `json:"code,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

type NearbyPayload struct {
	Users  []discovery.RadarUser `json:"users"`
	Radius float64               `json:"radius"`
}

// IncomingMessage is what the client sends. Payload fields are read
// according to Type.
type IncomingMessage struct {
	Type      string         `json:"type"`
	Position  *validator.Fix `json:"position,omitempty"`
	Code      string         `json:"code,omitempty"`
	Message   string         `json:"message,omitempty"`
	Enabled   bool           `json:"enabled,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

func NewStateMessage(state tracker.State) *Message {
	return &Message{
		Type:      MessageTypeState,
		State:     &state,
		Timestamp: time.Now().Unix(),
	}
}

func NewNearbyMessage(users []discovery.RadarUser, radius float64) *Message {
	if users == nil {
		users = []discovery.RadarUser{}
	}
	return &Message{
		Type:      MessageTypeNearby,
		Nearby:    &NearbyPayload{Users: users, Radius: radius},
		Timestamp: time.Now().Unix(),
	}
}

func NewErrorMessage(errMsg, code string) *Message {
	return &Message{
		Type:      MessageTypeError,
		Content:   errMsg,
		ErrorCode: code,
		Timestamp: time.Now().Unix(),
	}
}

func NewPongMessage() *Message {
	return &Message{
		Type:      MessageTypePong,
		Timestamp: time.Now().Unix(),
	}
}
