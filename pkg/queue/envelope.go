package queue

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// envelope is the wire form for backends without native message attributes.
type envelope struct {
	Attributes map[string]string `json:"attributes,omitempty"`
	Body       json.RawMessage   `json:"body"`
}

// Encode wraps a JSON body and its attributes into one payload.
func Encode(body []byte, attrs map[string]string) ([]byte, error) {
	if !json.Valid(body) {
		return nil, fmt.Errorf("encode envelope: body is not valid JSON")
	}
	data, err := json.Marshal(envelope{Attributes: attrs, Body: body})
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return data, nil
}

// Decode splits a payload written by Encode. A payload that is not an
// envelope is returned as the body with no attributes, so producers that
// predate the envelope are still readable.
func Decode(data []byte) ([]byte, map[string]string, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		// Not a JSON object: hand the raw bytes to the parser downstream.
		return data, map[string]string{}, nil
	}

	rawBody, ok := probe["body"]
	if !ok {
		return data, map[string]string{}, nil
	}

	attrs := map[string]string{}
	if rawAttrs, ok := probe["attributes"]; ok && !bytes.Equal(rawAttrs, []byte("null")) {
		if err := json.Unmarshal(rawAttrs, &attrs); err != nil {
			return nil, nil, fmt.Errorf("decode envelope attributes: %w", err)
		}
	}

	return rawBody, attrs, nil
}
