package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"github.com/texelworks/painterlink/internal/protocol"
)

// NewCallCommand builds the ad-hoc peer: dial a running bridge, send one
// request and print the response. Meant for poking at a bridge by hand.
func NewCallCommand() *cobra.Command {
	var addr string
	var timeout time.Duration

	callCmd := &cobra.Command{
		Use:   "call <command> [key=value ...]",
		Short: "Send one command to a running bridge",
		Long: `Connect to a running bridge as its peer, send a single command and print
the response. Parameters are key=value pairs; values parse as JSON when
possible, otherwise as strings.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			method := args[0]
			params := protocol.Params{}
			for _, arg := range args[1:] {
				key, value, found := strings.Cut(arg, "=")
				if !found {
					return fmt.Errorf("invalid parameter %q, expected key=value", arg)
				}
				params[key] = parseValue(value)
			}

			return runCall(addr, timeout, method, params)
		},
	}

	callCmd.Flags().StringVar(&addr, "addr", "127.0.0.1:0", "bridge address (host:port)")
	callCmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "response timeout")

	return callCmd
}

// parseValue interprets a flag value the way the wire does: bools and numbers
// stay typed, everything else is a string.
func parseValue(s string) any {
	if s == "true" {
		return true
	}
	if s == "false" {
		return false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

func runCall(addr string, timeout time.Duration, method string, params protocol.Params) error {
	url := fmt.Sprintf("ws://%s/", addr)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to bridge at %s: %w", addr, err)
	}
	defer conn.Close()

	// String ids like the real companion uses
	id := protocol.StringID(strings.ReplaceAll(uuid.NewString(), "-", ""))

	req := &protocol.Request{
		JSONRPC: protocol.Version,
		Method:  strings.ToUpper(method),
		Params:  params,
		ID:      id,
	}
	data, err := protocol.Encode(req)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}

	deadline := time.Now().Add(timeout)
	conn.SetReadDeadline(deadline)

	// Skip unrelated frames (notifications, stale responses) until our id
	// comes back or the deadline hits
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("no response within %s: %w", timeout, err)
		}

		env, err := protocol.Decode(message)
		if err != nil {
			continue
		}
		if env.Kind != protocol.KindResponse || env.ID.String() != id.String() {
			continue
		}

		if env.Err != nil {
			return fmt.Errorf("bridge returned error: %s", env.Err.Message)
		}
		out, err := json.Marshal(env.Result)
		if err != nil {
			return fmt.Errorf("failed to render result: %w", err)
		}
		fmt.Println(string(out))
		return nil
	}
}
