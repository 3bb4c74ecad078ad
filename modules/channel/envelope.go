package channel

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/example/pulse-dashboard/domain/dashboard"
)

// Kind is the discriminator of a push frame.
type Kind string

// Recognized frame kinds.
const (
	KindUpdate     Kind = "update"
	KindNewMessage Kind = "new_message"
	KindPing       Kind = "ping"
)

var (
	// ErrMalformedFrame is returned for frames that are not valid JSON or
	// whose payload does not match their kind.
	ErrMalformedFrame = errors.New("malformed push frame")
	// ErrUnknownKind is returned for well-formed frames of an unrecognized kind.
	ErrUnknownKind = errors.New("unknown push frame kind")
)

// NewMessage is the payload of a new_message frame.
type NewMessage struct {
	Username    string `json:"username"`
	Message     string `json:"message"`
	MessageType string `json:"message_type,omitempty"`
}

// Envelope is a decoded push frame. Exactly one payload is set, matching Kind;
// ping frames carry none.
type Envelope struct {
	Kind    Kind
	Stats   *dashboard.StatsSnapshot
	Message *NewMessage
}

type frame struct {
	Type        string          `json:"type"`
	Data        json.RawMessage `json:"data,omitempty"`
	Username    string          `json:"username,omitempty"`
	Message     string          `json:"message,omitempty"`
	MessageType string          `json:"message_type,omitempty"`
}

// Decode validates a raw push frame and converts it into an Envelope.
func Decode(raw []byte) (Envelope, error) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	env := Envelope{Kind: Kind(f.Type)}
	switch env.Kind {
	case KindUpdate:
		var stats dashboard.StatsSnapshot
		if hasData(f.Data) {
			if err := json.Unmarshal(f.Data, &stats); err != nil {
				return Envelope{}, fmt.Errorf("%w: update data: %v", ErrMalformedFrame, err)
			}
		}
		env.Stats = &stats
	case KindNewMessage:
		msg := NewMessage{
			Username:    f.Username,
			Message:     f.Message,
			MessageType: f.MessageType,
		}
		// Some servers nest the message fields under data.
		if msg.Username == "" && msg.Message == "" && hasData(f.Data) {
			if err := json.Unmarshal(f.Data, &msg); err != nil {
				return Envelope{}, fmt.Errorf("%w: new_message data: %v", ErrMalformedFrame, err)
			}
		}
		env.Message = &msg
	case KindPing:
	case "":
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	default:
		return env, fmt.Errorf("%w: %q", ErrUnknownKind, f.Type)
	}
	return env, nil
}

func hasData(data json.RawMessage) bool {
	data = bytes.TrimSpace(data)
	return len(data) > 0 && !bytes.Equal(data, []byte("null"))
}
