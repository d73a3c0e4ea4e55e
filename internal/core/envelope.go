package core

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

// Frame is the websocket envelope in both directions. Inbound timestamps are
// accepted and ignored.
type Frame struct {
	Namespace string          `json:"namespace"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

func EncodeFrame(namespace string, ts time.Time, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", namespace, err)
	}
	return json.Marshal(Frame{Namespace: namespace, Timestamp: ts.UTC(), Payload: raw})
}

func DecodeFrame(raw []byte) (Frame, error) {
	var f struct {
		Namespace string          `json:"namespace"`
		Payload   json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(raw, &f); err != nil {
		return Frame{}, err
	}
	if f.Namespace == "" {
		return Frame{}, fmt.Errorf("frame without namespace")
	}
	return Frame{Namespace: f.Namespace, Payload: f.Payload}, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate runs the struct tag rules of a decoded command.
func Validate(v any) error {
	return validate.Struct(v)
}

// DecodeAction returns the "action" tag of an inbound module payload.
func DecodeAction(payload json.RawMessage) (string, error) {
	return decodeTag(payload, "action")
}

// DecodeMessage returns the "message" tag of an outbound or exchange payload.
func DecodeMessage(payload json.RawMessage) (string, error) {
	return decodeTag(payload, "message")
}

func decodeTag(payload json.RawMessage, field string) (string, error) {
	var tags map[string]json.RawMessage
	if err := json.Unmarshal(payload, &tags); err != nil {
		return "", ErrInvalidJSON
	}
	raw, ok := tags[field]
	if !ok {
		return "", ErrInvalidJSON
	}
	var tag string
	if err := json.Unmarshal(raw, &tag); err != nil || tag == "" {
		return "", ErrInvalidJSON
	}
	return tag, nil
}

// Decode unmarshals payload into T and validates it. Any failure is reported
// to the client as invalid_json.
func Decode[T any](payload json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		log.Debug().Err(err).Str("module", "core").Msg("decode payload")
		return v, ErrInvalidJSON
	}
	if err := validate.Struct(&v); err != nil {
		if _, isStruct := err.(*validator.InvalidValidationError); !isStruct {
			log.Debug().Err(err).Str("module", "core").Msg("validate payload")
			return v, ErrInvalidJSON
		}
	}
	return v, nil
}
