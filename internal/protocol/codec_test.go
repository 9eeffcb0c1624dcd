package protocol

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestDecodeRequest(t *testing.T) {
	data := []byte(`{"jsonrpc":"2.0","method":"PING","params":{"path":"/tmp/a.spp"},"id":7}`)

	env, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if env.Kind != KindRequest {
		t.Fatalf("expected KindRequest, got %v", env.Kind)
	}
	if env.Method != "PING" {
		t.Errorf("method = %q, want PING", env.Method)
	}
	if path, ok := env.Params.String("path"); !ok || path != "/tmp/a.spp" {
		t.Errorf("params path = %q, %v", path, ok)
	}
	if env.ID.String() != "7" {
		t.Errorf("id = %s, want 7", env.ID)
	}
}

func TestDecodeRequestStringID(t *testing.T) {
	// The original peer generates uuid hex strings for its ids
	data := []byte(`{"jsonrpc":"2.0","method":"GET_VERSION","params":{},"id":"bf2c6a9e"}`)

	env, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	// Echo must be byte-identical
	out, err := json.Marshal(env.ID)
	if err != nil {
		t.Fatalf("marshal id: %v", err)
	}
	if string(out) != `"bf2c6a9e"` {
		t.Errorf("id round-trip = %s, want \"bf2c6a9e\"", out)
	}
}

func TestDecodeResponse(t *testing.T) {
	env, err := Decode([]byte(`{"jsonrpc":"2.0","result":"pong","id":3}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if env.Kind != KindResponse {
		t.Fatalf("expected KindResponse, got %v", env.Kind)
	}
	if env.Result != "pong" {
		t.Errorf("result = %v, want pong", env.Result)
	}

	env, err = Decode([]byte(`{"jsonrpc":"2.0","error":"file not found","id":4}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if env.Err == nil || env.Err.Message != "file not found" {
		t.Errorf("error = %+v, want file not found", env.Err)
	}
}

func TestDecodeNullResultIsSuccess(t *testing.T) {
	env, err := Decode([]byte(`{"jsonrpc":"2.0","result":null,"id":1}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if env.Kind != KindResponse || env.Err != nil || env.Result != nil {
		t.Errorf("expected success response with nil result, got %+v", env)
	}
}

func TestDecodeMalformed(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"non-object", `[1,2,3]`},
		{"truncated", `{"jsonrpc":"2.0","method":"PI`},
		{"missing id", `{"jsonrpc":"2.0","method":"PING","params":{}}`},
		{"no method no result", `{"jsonrpc":"2.0","id":1}`},
		{"both result and error", `{"jsonrpc":"2.0","result":1,"error":"x","id":1}`},
		{"bool id", `{"jsonrpc":"2.0","method":"PING","id":true}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.data))
			if err == nil {
				t.Fatal("expected decode error")
			}
			var derr *DecodeError
			if !errors.As(err, &derr) {
				t.Fatalf("expected *DecodeError, got %T", err)
			}
		})
	}
}

func TestDecodeErrorSnippetBounded(t *testing.T) {
	payload := []byte("{" + strings.Repeat("x", 4096))
	_, err := Decode(payload)

	var derr *DecodeError
	if !errors.As(err, &derr) {
		t.Fatalf("expected *DecodeError, got %v", err)
	}
	if len(derr.Snippet) > 120 {
		t.Errorf("snippet length = %d, want <= 120", len(derr.Snippet))
	}
}

func TestEncodeResponse(t *testing.T) {
	data, err := Encode(NewResponse(NumberID(7), "pong"))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	want := `{"jsonrpc":"2.0","result":"pong","id":7}`
	if string(data) != want {
		t.Errorf("encoded = %s, want %s", data, want)
	}
}

func TestEncodeErrorResponse(t *testing.T) {
	data, err := Encode(NewErrorResponse(NumberID(9), "no project open"))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	want := `{"jsonrpc":"2.0","error":"no project open","id":9}`
	if string(data) != want {
		t.Errorf("encoded = %s, want %s", data, want)
	}
}

func TestEncodeErrorWithDetail(t *testing.T) {
	resp := &Response{
		JSONRPC: Version,
		Err:     &Error{Message: "export failed", Data: map[string]any{"map": "basecolor"}},
		ID:      NumberID(2),
	}
	data, err := Encode(resp)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	want := `{"jsonrpc":"2.0","error":{"message":"export failed","data":{"map":"basecolor"}},"id":2}`
	if string(data) != want {
		t.Errorf("encoded = %s, want %s", data, want)
	}
}

func TestEncodeNilResult(t *testing.T) {
	data, err := Encode(NewResponse(NumberID(1), nil))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if string(data) != `{"jsonrpc":"2.0","result":null,"id":1}` {
		t.Errorf("encoded = %s", data)
	}
}

func TestEncodeNotification(t *testing.T) {
	n := NewNotification(2, "PROJECT_OPENED", Params{"path": "/tmp/a.spp"})
	data, err := Encode(n)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	want := `{"jsonrpc":"2.0","method":"PROJECT_OPENED","params":{"path":"/tmp/a.spp"},"id":2}`
	if string(data) != want {
		t.Errorf("encoded = %s, want %s", data, want)
	}
}

func TestParamsPresence(t *testing.T) {
	p := Params{
		"path":    "/tmp/a.spp",
		"enabled": false,
		"count":   float64(0),
		"pos":     map[string]any{"x": float64(10), "y": float64(20)},
	}

	// A present-but-falsy value must still report presence
	if enabled, ok := p.Bool("enabled"); !ok || enabled {
		t.Errorf("Bool(enabled) = %v, %v; want false, true", enabled, ok)
	}
	if count, ok := p.Int("count"); !ok || count != 0 {
		t.Errorf("Int(count) = %v, %v; want 0, true", count, ok)
	}
	if _, ok := p.String("missing"); ok {
		t.Error("String(missing) reported presence")
	}
	if _, ok := p.Bool("path"); ok {
		t.Error("Bool(path) accepted a string value")
	}

	pos, ok := p.Object("pos")
	if !ok {
		t.Fatal("Object(pos) not found")
	}
	if x, ok := pos.Int("x"); !ok || x != 10 {
		t.Errorf("pos.x = %v, %v", x, ok)
	}
}
