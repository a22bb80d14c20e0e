package types

import (
	"encoding/json"
	"fmt"
)

// inboundEnvelope covers every field a client message may carry. A single
// decode pass sorts the message into one of the two inbound kinds.
type inboundEnvelope struct {
	Option   string            `json:"option"`
	Category string            `json:"category"`
	Csc      string            `json:"csc"`
	SalIndex *int              `json:"salindex"`
	Stream   string            `json:"stream"`
	Data     map[string]string `json:"data"`
}

// ParseClientMessage decodes a raw inbound frame into exactly one of a
// control request or a data message. A frame carrying an "option" field is
// a control message; a frame carrying "data" is a data message; anything
// else is malformed.
func ParseClientMessage(raw []byte) (*SubscribeRequest, *DataMessage, error) {
	var env inboundEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	if env.Option != "" {
		if env.Option != OptionSubscribe && env.Option != OptionUnsubscribe {
			return nil, nil, fmt.Errorf("%w: unknown option %q", ErrMalformedMessage, env.Option)
		}
		if env.Csc == "" || env.Stream == "" {
			return nil, nil, fmt.Errorf("%w: control message requires csc and stream", ErrMalformedMessage)
		}
		return &SubscribeRequest{
			Option:   env.Option,
			Category: env.Category,
			Csc:      env.Csc,
			SalIndex: env.SalIndex,
			Stream:   env.Stream,
		}, nil, nil
	}

	if env.Data != nil {
		if env.Category == "" {
			return nil, nil, fmt.Errorf("%w: data message requires category", ErrMalformedMessage)
		}
		if len(env.Data) == 0 {
			return nil, nil, fmt.Errorf("%w: data message carries no csc entries", ErrMalformedMessage)
		}
		return nil, &DataMessage{
			Category: env.Category,
			SalIndex: env.SalIndex,
			Data:     env.Data,
		}, nil
	}

	return nil, nil, fmt.Errorf("%w: neither option nor data present", ErrMalformedMessage)
}

// DecodeStreams decodes one csc's JSON-encoded stream map from a data
// message.
func DecodeStreams(encoded string) (map[string]json.RawMessage, error) {
	var streams map[string]json.RawMessage
	if err := json.Unmarshal([]byte(encoded), &streams); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return streams, nil
}
