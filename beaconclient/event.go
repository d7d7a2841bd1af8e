package beaconclient

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// Event is a decoded frame: a topic plus its opaque JSON payload.
// The same Event is handed to every listener, so it is read-only.
type Event struct {
	topic   Topic
	payload Payload
}

// NewEvent copies data into a new Event. data must be valid JSON.
func NewEvent(topic Topic, data []byte) Event {
	return Event{topic: topic, payload: newPayload(data)}
}

func (e Event) Topic() Topic {
	return e.topic
}

func (e Event) Payload() Payload {
	return e.payload
}

// Payload is the JSON document carried by an event. It is not interpreted;
// consumers navigate it by key.
type Payload struct {
	raw []byte
}

func newPayload(data []byte) Payload {
	raw := make([]byte, len(data))
	copy(raw, data)
	return Payload{raw: raw}
}

// Get returns the value at the gjson path, e.g. "slot" or "data.message.slot".
func (p Payload) Get(path string) gjson.Result {
	return gjson.GetBytes(p.raw, path)
}

// Raw returns a copy of the JSON text.
func (p Payload) Raw() []byte {
	raw := make([]byte, len(p.raw))
	copy(raw, p.raw)
	return raw
}

// Unmarshal decodes the payload into v.
func (p Payload) Unmarshal(v any) error {
	return json.Unmarshal(p.raw, v)
}

func (p Payload) String() string {
	return string(p.raw)
}
