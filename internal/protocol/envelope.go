package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Version is the protocol marker carried by every envelope.
const Version = "2.0"

// ID is a request correlation id. The peer may send either a JSON number or a
// JSON string; whichever it was, the response echoes it back byte-identically.
// The zero ID is "absent".
type ID struct {
	str     string
	num     int64
	numeric bool
	present bool
}

// NumberID builds a locally generated numeric id.
func NumberID(n int64) ID {
	return ID{num: n, numeric: true, present: true}
}

// StringID builds a string id.
func StringID(s string) ID {
	return ID{str: s, present: true}
}

// IsZero reports whether the id was absent from the payload.
func (id ID) IsZero() bool {
	return !id.present
}

func (id ID) String() string {
	if !id.present {
		return "<none>"
	}
	if id.numeric {
		return strconv.FormatInt(id.num, 10)
	}
	return id.str
}

func (id ID) MarshalJSON() ([]byte, error) {
	if !id.present {
		return []byte("null"), nil
	}
	if id.numeric {
		return []byte(strconv.FormatInt(id.num, 10)), nil
	}
	return json.Marshal(id.str)
}

func (id *ID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*id = ID{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = StringID(s)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or an integer: %w", err)
	}
	*id = NumberID(n)
	return nil
}

// Params is the parameter bag attached to requests and notifications.
// Accessors report presence explicitly so callers never have to infer a
// missing key from a zero value.
type Params map[string]any

// Get returns the raw value for key.
func (p Params) Get(key string) (any, bool) {
	v, ok := p[key]
	return v, ok
}

// String returns the value for key if it is present and a string.
func (p Params) String(key string) (string, bool) {
	v, ok := p[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Bool returns the value for key if it is present and a boolean.
func (p Params) Bool(key string) (bool, bool) {
	v, ok := p[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// Float returns the value for key if it is present and numeric.
// JSON numbers always decode as float64.
func (p Params) Float(key string) (float64, bool) {
	v, ok := p[key]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

// Int returns the value for key if it is present and an integral number.
func (p Params) Int(key string) (int, bool) {
	f, ok := p.Float(key)
	if !ok || f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}

// Object returns the value for key if it is present and a nested object.
func (p Params) Object(key string) (Params, bool) {
	v, ok := p[key]
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	return Params(m), true
}

// Error is the failure half of a response envelope. On the wire it is a bare
// string when only a message is carried, or an object when structured detail
// is attached.
type Error struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) MarshalJSON() ([]byte, error) {
	if e.Data == nil {
		return json.Marshal(e.Message)
	}
	type wire Error
	return json.Marshal((*wire)(e))
}

func (e *Error) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &e.Message)
	}
	type wire Error
	return json.Unmarshal(data, (*wire)(e))
}

// Request is a two-way command from the peer. The id is peer-supplied and
// echoed back in the response.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  Params `json:"params,omitempty"`
	ID      ID     `json:"id"`
}

// Response answers exactly one Request. Exactly one of Result or Err is set;
// a success with a nil result still carries an explicit "result":null so the
// peer can tell success from failure.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	Result  any    `json:"result,omitempty"`
	Err     *Error `json:"error,omitempty"`
	ID      ID     `json:"id"`
}

func (r *Response) MarshalJSON() ([]byte, error) {
	if r.Err != nil {
		return json.Marshal(struct {
			JSONRPC string `json:"jsonrpc"`
			Err     *Error `json:"error"`
			ID      ID     `json:"id"`
		}{r.JSONRPC, r.Err, r.ID})
	}
	return json.Marshal(struct {
		JSONRPC string `json:"jsonrpc"`
		Result  any    `json:"result"`
		ID      ID     `json:"id"`
	}{r.JSONRPC, r.Result, r.ID})
}

// Notification is a one-way, fire-and-forget command from the bridge to the
// peer. Its id is generated locally for log correlation only; no reply is
// ever awaited, and implementations must not build reply tracking for it.
type Notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  Params `json:"params,omitempty"`
	ID      int64  `json:"id"`
}

// NewResponse builds a success response echoing the request id.
func NewResponse(id ID, result any) *Response {
	return &Response{JSONRPC: Version, Result: result, ID: id}
}

// NewErrorResponse builds a failure response echoing the request id.
func NewErrorResponse(id ID, message string) *Response {
	return &Response{JSONRPC: Version, Err: &Error{Message: message}, ID: id}
}

// NewNotification builds an outbound notification envelope.
func NewNotification(id int64, method string, params Params) *Notification {
	return &Notification{JSONRPC: Version, Method: method, Params: params, ID: id}
}
