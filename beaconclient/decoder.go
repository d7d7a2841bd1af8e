package beaconclient

import (
	"bytes"
	"fmt"

	"github.com/tidwall/gjson"
)

// frame is one record of the event-stream body.
type frame struct {
	ID    string
	Event string
	Data  []byte
}

// parseFrame extracts the fields of a single record, as returned by
// sse.EventStreamReader. Unknown fields and comment lines are ignored.
func parseFrame(record []byte) frame {
	var (
		f       frame
		hasData bool
	)
	for _, line := range bytes.Split(record, []byte("\n")) {
		line = bytes.TrimSuffix(line, []byte("\r"))
		if len(line) == 0 || line[0] == ':' {
			continue
		}

		parts := bytes.SplitN(line, []byte(":"), 2)
		if len(parts) == 1 {
			parts = append(parts, nil)
		}
		value := parts[1]
		if len(value) > 0 && value[0] == ' ' {
			value = value[1:]
		}

		switch string(parts[0]) {
		case "id":
			f.ID = string(value)
		case "event":
			f.Event = string(value)
		case "data":
			if hasData {
				f.Data = append(f.Data, '\n')
			}
			f.Data = append(f.Data, value...)
			hasData = true
		}
	}
	return f
}

// DefaultMaxPayloadBytes bounds a single frame. Beacon block events carry
// full blocks on some clients, so the limit is generous.
const DefaultMaxPayloadBytes = 16 << 20

// Decoder turns a wire tag and payload text into an Event.
type Decoder struct {
	MaxPayloadBytes int
}

func NewDecoder(maxPayloadBytes int) *Decoder {
	if maxPayloadBytes <= 0 {
		maxPayloadBytes = DefaultMaxPayloadBytes
	}
	return &Decoder{MaxPayloadBytes: maxPayloadBytes}
}

// Decode returns a *DecodeError when the tag is unknown or the payload is not
// a single JSON document.
func (d *Decoder) Decode(tag string, data []byte) (Event, error) {
	topic := TopicFromString(tag)
	if topic == TopicUnknown {
		return Event{}, &DecodeError{Reason: ReasonUnknownTopic, Tag: tag}
	}

	if d.MaxPayloadBytes > 0 && len(data) > d.MaxPayloadBytes {
		return Event{}, &DecodeError{
			Reason: ReasonMalformedPayload,
			Tag:    tag,
			Err:    fmt.Errorf("payload of %d bytes exceeds limit of %d", len(data), d.MaxPayloadBytes),
		}
	}
	if len(bytes.TrimSpace(data)) == 0 || !gjson.ValidBytes(data) {
		return Event{}, &DecodeError{Reason: ReasonMalformedPayload, Tag: tag}
	}

	return NewEvent(topic, data), nil
}
