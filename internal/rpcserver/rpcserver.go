// Package rpcserver is the JSON-RPC-over-stdio tool transport of spec.md
// §6: it reads newline-delimited JSON-RPC 2.0 requests from an input
// stream, dispatches each to the named tool handler, and writes back a
// single JSON-RPC response whose result is the tool's markdown text
// wrapped in the MCP "content" envelope.
//
// Grounded on the teacher's cmd/gateway/main.go request-ID generation and
// signal-driven graceful shutdown idiom, adapted from an HTTP server loop
// to a bufio.Scanner-driven stdio loop, and on gateway/handler.go's manual
// field-presence validation (if aegisReq.Model == "") generalized into a
// small per-tool dispatch table.
package rpcserver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// request is one incoming JSON-RPC 2.0 call. ID may be a string, number,
// or absent (a notification); we echo it back verbatim.
type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// toolCallParams is the MCP "tools/call" params shape: a tool name plus
// its free-form arguments, decoded per-tool into the matching Input type.
type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// toolResult is the MCP tool-call result envelope: a single text content
// block plus an is_error flag, per spec.md §6 ("all tool outputs are a
// single text payload"; "invocation never surfaces a protocol-level fault
// for a domain-level failure").
type toolResult struct {
	Content []contentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Handler runs one tool call and returns its markdown text plus whether
// it represents a domain-level error. It must never panic on malformed
// input — tool handlers validate their own decoded input — but a bad
// JSON decode of Arguments is caught by the server before Handler runs.
type Handler func(ctx context.Context, rawArgs json.RawMessage) (text string, isError bool, err error)

// Server dispatches JSON-RPC "tools/call" requests to a registered table
// of per-tool Handlers, and "tools/list" to a static catalog, over a
// single input/output stream pair.
type Server struct {
	logger   *slog.Logger
	handlers map[string]Handler
	catalog  []ToolSpec

	wg sync.WaitGroup
}

// ToolSpec describes one registered tool for the "tools/list" response;
// InputSchema is an arbitrary JSON Schema document (spec.md §6's table,
// expressed as JSON Schema).
type ToolSpec struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema any    `json:"inputSchema"`
}

// New creates an empty Server. Register tools with Register before Run.
func New(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		logger:   logger,
		handlers: make(map[string]Handler),
	}
}

// Register adds one tool to the dispatch table and the tools/list catalog.
func (s *Server) Register(spec ToolSpec, h Handler) {
	s.handlers[spec.Name] = h
	s.catalog = append(s.catalog, spec)
}

// Run reads newline-delimited JSON-RPC requests from r and writes
// responses to w until r is exhausted or ctx is cancelled. Each request
// is handled on its own goroutine so a slow tool call (a backend query)
// never blocks the next request's line from being read; Run waits for
// all in-flight handlers to finish before returning once ctx is done, up
// to the caller's own grace period.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	var writeMu sync.Mutex
	writeLine := func(v any) {
		data, err := json.Marshal(v)
		if err != nil {
			s.logger.Error("failed to marshal rpc response", "error", err)
			return
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		w.Write(data)
		w.Write([]byte("\n"))
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			req := make([]byte, len(line))
			copy(req, line)

			s.wg.Add(1)
			go func(line []byte) {
				defer s.wg.Done()
				resp := s.handleLine(ctx, line)
				if resp != nil {
					writeLine(resp)
				}
			}(req)
		}
	}()

	select {
	case <-done:
		s.wg.Wait()
		return scanner.Err()
	case <-ctx.Done():
		s.wg.Wait()
		return ctx.Err()
	}
}

// Shutdown blocks until every in-flight request has been handled, or ctx
// is cancelled first.
func (s *Server) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) handleLine(ctx context.Context, line []byte) *response {
	var req request
	if err := json.Unmarshal(line, &req); err != nil {
		s.logger.Warn("malformed json-rpc request", "error", err)
		return &response{JSONRPC: "2.0", Error: &rpcError{Code: -32700, Message: "parse error"}}
	}

	requestID := uuid.NewString()
	logger := s.logger.With("request_id", requestID, "method", req.Method)

	switch req.Method {
	case "tools/list":
		logger.Info("tools/list")
		return &response{JSONRPC: "2.0", ID: req.ID, Result: map[string]any{"tools": s.catalog}}
	case "tools/call":
		return s.handleToolCall(ctx, req, logger)
	default:
		logger.Warn("unknown method")
		return &response{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: -32601, Message: fmt.Sprintf("unknown method %q", req.Method)}}
	}
}

func (s *Server) handleToolCall(ctx context.Context, req request, logger *slog.Logger) *response {
	var params toolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return &response{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: -32602, Message: "invalid params"}}
	}
	logger = logger.With("tool", params.Name)

	handler, ok := s.handlers[params.Name]
	if !ok {
		logger.Warn("unknown tool")
		return &response{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: -32601, Message: fmt.Sprintf("unknown tool %q", params.Name)}}
	}

	text, isError, err := handler(ctx, params.Arguments)
	if err != nil {
		// The handler itself failed to even decode its input — this is a
		// transport-level fault (malformed arguments JSON), distinct from
		// the domain-level failures tool handlers render as markdown.
		logger.Warn("tool call failed before handler ran", "error", err)
		return &response{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: -32602, Message: err.Error()}}
	}

	logger.Info("tool call completed", "is_error", isError)
	return &response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: toolResult{
			Content: []contentBlock{{Type: "text", Text: text}},
			IsError: isError,
		},
	}
}

// DecodeArgs is the small helper every registered Handler uses to turn
// raw JSON arguments into its tool's typed Input struct.
func DecodeArgs[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("decode tool arguments: %w", err)
	}
	return v, nil
}
