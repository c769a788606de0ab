package server

import (
	"context"
	"encoding/json"
	"net/http"

	apperrors "github.com/copyleftdev/gridplan/internal/errors"
)

// JSON-RPC 2.0 error codes
const (
	rpcParseError     = -32700
	rpcInvalidRequest = -32600
	rpcMethodNotFound = -32601
	rpcInvalidParams  = -32602
	rpcServerError    = -32000
)

// rpcParamsError marks a request whose params could not be used.
type rpcParamsError struct{ msg string }

func (e *rpcParamsError) Error() string { return e.msg }

func invalidParams(msg string) error { return &rpcParamsError{msg: msg} }

// handleJSONRPC handles JSON-RPC 2.0 requests
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	var request struct {
		JSONRPC string        `json:"jsonrpc"`
		ID      interface{}   `json:"id"`
		Method  string        `json:"method"`
		Params  []interface{} `json:"params,omitempty"`
	}

	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.respondWithError(w, rpcParseError, "Parse error", nil)
		return
	}

	if request.JSONRPC != "2.0" {
		s.respondWithError(w, rpcInvalidRequest, "Invalid Request", nil)
		return
	}

	var result interface{}
	var err error

	switch request.Method {
	case "plan.start":
		result, err = s.rpcStart(request.Params)
	case "plan.status":
		result, err = s.rpcStatus(r.Context(), request.Params)
	case "plan.result":
		result, err = s.rpcResult(r.Context(), request.Params)
	case "plan.cancel":
		result, err = s.rpcCancel(r.Context(), request.Params)
	case "plan.list":
		result, err = s.store.ListRuns(r.Context())
	default:
		s.respondWithError(w, rpcMethodNotFound, "Method not found", request.ID)
		return
	}

	if err != nil {
		if _, ok := err.(*rpcParamsError); ok {
			s.respondWithError(w, rpcInvalidParams, "Invalid params: "+err.Error(), request.ID)
			return
		}
		s.respondWithError(w, rpcServerError, "Server error: "+err.Error(), request.ID)
		return
	}

	response := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      request.ID,
		"result":  result,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Error("Failed to encode response", map[string]interface{}{"error": err.Error()})
	}
}

// rpcStart handles plan.start.
// Expected parameters: {"scenario": <object or YAML/JSON string>}
// Returns: {"run_id": "...", "status": "pending"}
func (s *Server) rpcStart(params []interface{}) (interface{}, error) {
	p, err := paramObject(params)
	if err != nil {
		return nil, err
	}

	var doc []byte
	switch sc := p["scenario"].(type) {
	case string:
		doc = []byte(sc)
	case map[string]interface{}:
		if doc, err = json.Marshal(sc); err != nil {
			return nil, invalidParams(err.Error())
		}
	default:
		return nil, invalidParams("scenario is required")
	}

	run, err := s.startRun(doc)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"run_id": run.ID,
		"status": run.Status,
	}, nil
}

// rpcStatus handles plan.status.
// Expected parameters: {"run_id": "..."}
func (s *Server) rpcStatus(ctx context.Context, params []interface{}) (interface{}, error) {
	id, err := paramRunID(params)
	if err != nil {
		return nil, err
	}
	run, ok, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errNotFound(id)
	}
	return summary(run), nil
}

// rpcResult handles plan.result.
// Expected parameters: {"run_id": "..."}
func (s *Server) rpcResult(ctx context.Context, params []interface{}) (interface{}, error) {
	id, err := paramRunID(params)
	if err != nil {
		return nil, err
	}
	run, ok, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errNotFound(id)
	}
	if run.Result == nil {
		return nil, apperrors.Config("server.rpcResult", "run %s has no result, status: %s", id, run.Status)
	}
	return run.Result, nil
}

// rpcCancel handles plan.cancel.
// Expected parameters: {"run_id": "..."}
func (s *Server) rpcCancel(ctx context.Context, params []interface{}) (interface{}, error) {
	id, err := paramRunID(params)
	if err != nil {
		return nil, err
	}
	run, err := s.cancelRun(ctx, id)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"run_id": run.ID,
		"status": "cancelling",
	}, nil
}

func paramObject(params []interface{}) (map[string]interface{}, error) {
	if len(params) == 0 {
		return nil, invalidParams("missing required parameters")
	}
	p, ok := params[0].(map[string]interface{})
	if !ok {
		return nil, invalidParams("invalid parameter format, expected object")
	}
	return p, nil
}

func paramRunID(params []interface{}) (string, error) {
	p, err := paramObject(params)
	if err != nil {
		return "", err
	}
	id, ok := p["run_id"].(string)
	if !ok || id == "" {
		return "", invalidParams("run_id is required")
	}
	return id, nil
}

// respondWithError sends a JSON-RPC 2.0 error response
func (s *Server) respondWithError(w http.ResponseWriter, code int, message string, id interface{}) {
	s.logger.Error("Request error", map[string]interface{}{
		"status":  code,
		"message": message,
	})

	response := map[string]interface{}{
		"jsonrpc": "2.0",
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
		"id": id,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Error("Failed to encode response", map[string]interface{}{"error": err.Error()})
	}
}
