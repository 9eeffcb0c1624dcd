package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// snippetLimit bounds how much of a malformed payload is kept for diagnostics,
// so a hostile or corrupt frame cannot blow up the logs.
const snippetLimit = 120

// DecodeError describes a payload the codec refused. It carries a short
// reason and at most the first snippetLimit bytes of the offending frame.
type DecodeError struct {
	Reason  string
	Snippet []byte
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode: %s: %q", e.Reason, e.Snippet)
}

func decodeError(reason string, payload []byte) *DecodeError {
	snippet := payload
	if len(snippet) > snippetLimit {
		snippet = snippet[:snippetLimit]
	}
	// Copy so the error does not pin the transport's read buffer.
	return &DecodeError{Reason: reason, Snippet: bytes.Clone(snippet)}
}

// Kind discriminates decoded envelopes.
type Kind int

const (
	KindRequest Kind = iota
	KindResponse
)

// Envelope is a decoded inbound message: either a request (Method/Params) or
// a response (Result/Err), always with an id.
type Envelope struct {
	Kind   Kind
	Method string
	Params Params
	Result any
	Err    *Error
	ID     ID
}

type wireEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  Params          `json:"params"`
	Result  json.RawMessage `json:"result"`
	Error   json.RawMessage `json:"error"`
	ID      ID              `json:"id"`
}

// Decode parses and validates one wire frame. Malformed input yields a
// *DecodeError; it never panics into the caller.
func Decode(data []byte) (*Envelope, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, decodeError("payload is not a JSON object", data)
	}

	var w wireEnvelope
	if err := json.Unmarshal(trimmed, &w); err != nil {
		return nil, decodeError(fmt.Sprintf("malformed JSON: %v", err), data)
	}
	if w.ID.IsZero() {
		return nil, decodeError("missing id", data)
	}

	if w.Method != "" {
		env := &Envelope{Kind: KindRequest, Method: w.Method, Params: w.Params, ID: w.ID}
		if env.Params == nil {
			env.Params = Params{}
		}
		return env, nil
	}

	hasResult := len(w.Result) > 0
	hasError := len(w.Error) > 0 && !bytes.Equal(w.Error, []byte("null"))
	if hasResult == hasError {
		return nil, decodeError("expected a method, or exactly one of result/error", data)
	}

	env := &Envelope{Kind: KindResponse, ID: w.ID}
	if hasError {
		var perr Error
		if err := json.Unmarshal(w.Error, &perr); err != nil {
			return nil, decodeError(fmt.Sprintf("malformed error field: %v", err), data)
		}
		env.Err = &perr
	} else {
		if err := json.Unmarshal(w.Result, &env.Result); err != nil {
			return nil, decodeError(fmt.Sprintf("malformed result field: %v", err), data)
		}
	}
	return env, nil
}

// Encode serializes any envelope type for the wire. One envelope is one
// transport frame.
func Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return data, nil
}
