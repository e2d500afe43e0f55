package wire

import (
	"encoding/json"
	"fmt"
)

// Envelope is the Container{message_type, body} framing named in spec.md §6.
type Envelope struct {
	MessageType MessageType     `json:"message_type"`
	Body        json.RawMessage `json:"body"`
}

// Encode wraps a typed body in an Envelope and marshals it.
func Encode(t MessageType, body any) ([]byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("wire: encode %s body: %w", t, err)
	}
	return json.Marshal(Envelope{MessageType: t, Body: raw})
}

// EncodeBare marshals a message with no envelope, used for the opening
// Hello and for AuthRequest frames sent before the session reaches READY.
func EncodeBare(v any) ([]byte, error) {
	return json.Marshal(v)
}

// DecodeEnvelope unwraps a framed message.
func DecodeEnvelope(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("wire: decode envelope: %w", err)
	}
	return env, nil
}

// DecodeBody unmarshals an Envelope's body into dst.
func DecodeBody(env Envelope, dst any) error {
	if err := json.Unmarshal(env.Body, dst); err != nil {
		return fmt.Errorf("wire: decode %s body: %w", env.MessageType, err)
	}
	return nil
}

// DecodeHello unmarshals the server's bare opening frame.
func DecodeHello(frame []byte) (Hello, error) {
	var h Hello
	if err := json.Unmarshal(frame, &h); err != nil {
		return Hello{}, fmt.Errorf("wire: decode hello: %w", err)
	}
	return h, nil
}
