package beaconclient

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration      = errors.New("invalid configuration")
	ErrMissingNodeURL     = fmt.Errorf("%w: missing beacon node url", ErrConfiguration)
	ErrNoTopicsSubscribed = fmt.Errorf("%w: no topics subscribed, call Subscribe before Start", ErrConfiguration)

	ErrInvalidArgument = errors.New("invalid argument")

	ErrTransport    = errors.New("event stream transport failure")
	ErrStreamClosed = fmt.Errorf("%w: stream closed by beacon node", ErrTransport)

	ErrDecode           = errors.New("cannot decode event")
	ErrUnknownTopic     = fmt.Errorf("%w: unknown topic", ErrDecode)
	ErrMalformedPayload = fmt.Errorf("%w: malformed payload", ErrDecode)

	ErrListenerFault = errors.New("listener fault")
)

// DecodeReason tells why a frame could not be turned into an Event.
type DecodeReason string

const (
	ReasonUnknownTopic     DecodeReason = "unknown_topic"
	ReasonMalformedPayload DecodeReason = "malformed_payload"
)

// DecodeError is returned by Decoder.Decode. The stream is never aborted for it.
type DecodeError struct {
	Reason DecodeReason
	Tag    string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode %q event: %s: %v", e.Tag, e.Reason, e.Err)
	}
	return fmt.Sprintf("decode %q event: %s", e.Tag, e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func (e *DecodeError) Is(target error) bool {
	switch target {
	case ErrDecode:
		return true
	case ErrUnknownTopic:
		return e.Reason == ReasonUnknownTopic
	case ErrMalformedPayload:
		return e.Reason == ReasonMalformedPayload
	}
	return false
}
