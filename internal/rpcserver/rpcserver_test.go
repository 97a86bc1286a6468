package rpcserver

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestServer_ToolsList(t *testing.T) {
	s := New(nil)
	s.Register(ToolSpec{Name: "ask_model", Description: "ask a model"}, func(ctx context.Context, raw json.RawMessage) (string, bool, error) {
		return "ok", false, nil
	})

	in := strings.NewReader(`{"jsonrpc":"2.0","id":"1","method":"tools/list"}` + "\n")
	var out bytes.Buffer

	if err := s.Run(context.Background(), in, &out); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var resp response
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
}

func TestServer_ToolsCallDispatchesToHandler(t *testing.T) {
	s := New(nil)
	var gotArgs string
	s.Register(ToolSpec{Name: "ask_model"}, func(ctx context.Context, raw json.RawMessage) (string, bool, error) {
		gotArgs = string(raw)
		return "hello", false, nil
	})

	in := strings.NewReader(`{"jsonrpc":"2.0","id":"1","method":"tools/call","params":{"name":"ask_model","arguments":{"model":"m1"}}}` + "\n")
	var out bytes.Buffer

	if err := s.Run(context.Background(), in, &out); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if gotArgs != `{"model":"m1"}` {
		t.Errorf("expected raw arguments passed through, got %q", gotArgs)
	}

	var resp response
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Error != nil {
		t.Fatalf("unexpected rpc error: %+v", resp.Error)
	}
}

func TestServer_UnknownToolIsMethodNotFound(t *testing.T) {
	s := New(nil)

	in := strings.NewReader(`{"jsonrpc":"2.0","id":"1","method":"tools/call","params":{"name":"nope","arguments":{}}}` + "\n")
	var out bytes.Buffer

	if err := s.Run(context.Background(), in, &out); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var resp response
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != -32601 {
		t.Fatalf("expected method-not-found error, got %+v", resp.Error)
	}
}

func TestServer_MalformedJSONIsParseError(t *testing.T) {
	s := New(nil)

	in := strings.NewReader(`{not json` + "\n")
	var out bytes.Buffer

	if err := s.Run(context.Background(), in, &out); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var resp response
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != -32700 {
		t.Fatalf("expected parse error, got %+v", resp.Error)
	}
}

func TestDecodeArgs_EmptyRawIsZeroValue(t *testing.T) {
	type input struct {
		Model string `json:"model"`
	}
	got, err := DecodeArgs[input](nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Model != "" {
		t.Errorf("expected zero value, got %+v", got)
	}
}
