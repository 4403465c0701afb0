package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
)

// LoopbackExecutor stands in for a remote stub: it serializes the request to
// wire bytes, hands them to a server-side executor, and deserializes the
// response, so every value crosses the serialization boundary exactly as it
// would over a real transport.
type LoopbackExecutor struct {
	server Executor
}

// NewLoopbackExecutor wraps the server-side executor that will perform the
// operation against its own backing store.
func NewLoopbackExecutor(server Executor) *LoopbackExecutor {
	return &LoopbackExecutor{server: server}
}

// Invoke round-trips the request and response through JSON.
func (e *LoopbackExecutor) Invoke(ctx context.Context, req Request) (Response, error) {
	reqWire, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("encode request: %w", err)
	}
	var remoteReq Request
	if err := json.Unmarshal(reqWire, &remoteReq); err != nil {
		return Response{}, fmt.Errorf("decode request: %w", err)
	}
	resp, err := e.server.Invoke(ctx, remoteReq)
	if err != nil {
		return Response{}, err
	}
	respWire, err := json.Marshal(resp)
	if err != nil {
		return Response{}, fmt.Errorf("encode response: %w", err)
	}
	var out Response
	if err := json.Unmarshal(respWire, &out); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}
