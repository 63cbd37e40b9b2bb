package bridge

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Message is one JSON-RPC shaped payload relayed between a caller and the
// backend. The body is opaque to the bridge except for the id field, whose
// presence distinguishes a request (a reply is expected) from a notification
// (only a submission acknowledgment is expected).
type Message struct {
	Raw json.RawMessage
	// ID is nil when the id field is absent. A present-but-null id still
	// counts as a request, mirroring the wire protocol.
	ID json.RawMessage
}

// ParseMessage validates body as JSON and extracts the correlation id.
func ParseMessage(body []byte) (Message, error) {
	var env struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return Message{}, fmt.Errorf("invalid message body: %w", err)
	}
	raw := make(json.RawMessage, len(body))
	copy(raw, body)
	return Message{Raw: raw, ID: env.ID}, nil
}

// IsNotification reports whether the message carries no id field.
func (m Message) IsNotification() bool {
	return m.ID == nil
}

// hasComparableID reports whether the id can be matched against a response.
func (m Message) hasComparableID() bool {
	return m.ID != nil && string(m.ID) != "null"
}

// sameID compares two JSON-encoded ids by value, so 1 matches 1.0 and
// formatting differences are ignored.
func sameID(a, b json.RawMessage) bool {
	if a == nil || b == nil {
		return false
	}
	var av, bv any
	if json.Unmarshal(a, &av) != nil || json.Unmarshal(b, &bv) != nil {
		return false
	}
	return reflect.DeepEqual(av, bv)
}
