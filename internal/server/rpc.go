package server

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// rpcRequest is a JSON-RPC 2.0 request envelope. Params carry a single
// positional object, matching the REST payloads.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      interface{}   `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// handleJSONRPC handles POST /rpc.
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	var request rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.respondWithError(w, -32700, "Parse error", nil)
		return
	}

	if request.JSONRPC != "2.0" {
		s.respondWithError(w, -32600, "Invalid Request", request.ID)
		return
	}

	var result interface{}
	var err error

	switch request.Method {
	case "tuning.start":
		result, err = s.rpcStart(request.Params)
	case "tuning.status":
		result, err = s.rpcStatus(request.Params)
	case "tuning.cancel":
		result, err = s.rpcCancel(request.Params)
	default:
		s.respondWithError(w, -32601, "Method not found", request.ID)
		return
	}

	if err != nil {
		s.respondWithError(w, -32000, err.Error(), request.ID)
		return
	}

	response := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      request.ID,
		"result":  result,
	}
	writeJSON(w, http.StatusOK, response)
}

// firstParam extracts the positional parameter object.
func firstParam(params []interface{}) (map[string]interface{}, error) {
	if len(params) == 0 {
		return nil, fmt.Errorf("missing required parameters")
	}
	obj, ok := params[0].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid parameter format, expected object")
	}
	return obj, nil
}

// rpcStart handles tuning.start. The parameter object matches the REST
// start payload: search_space, objective and optional options.
func (s *Server) rpcStart(params []interface{}) (interface{}, error) {
	obj, err := firstParam(params)
	if err != nil {
		return nil, err
	}

	// Round-trip through JSON to reuse the typed request decoding.
	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("invalid parameters: %v", err)
	}
	var req startRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("invalid parameters: %v", err)
	}

	return s.startRun(&req)
}

// rpcStatus handles tuning.status. Expected parameters: {"run_id": "run_123"}.
func (s *Server) rpcStatus(params []interface{}) (interface{}, error) {
	obj, err := firstParam(params)
	if err != nil {
		return nil, err
	}

	id, ok := obj["run_id"].(string)
	if !ok || id == "" {
		return nil, fmt.Errorf("run_id is required")
	}
	return s.runStatus(id)
}

// rpcCancel handles tuning.cancel. Expected parameters: {"run_id": "run_123"}.
func (s *Server) rpcCancel(params []interface{}) (interface{}, error) {
	obj, err := firstParam(params)
	if err != nil {
		return nil, err
	}

	id, ok := obj["run_id"].(string)
	if !ok || id == "" {
		return nil, fmt.Errorf("run_id is required")
	}
	if err := s.cancelRun(id); err != nil {
		return nil, err
	}
	return map[string]string{"status": "cancellation requested"}, nil
}

// respondWithError sends a JSON-RPC 2.0 error response.
func (s *Server) respondWithError(w http.ResponseWriter, code int, message string, id interface{}) {
	s.logger.Error("RPC error", map[string]interface{}{
		"code":    code,
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
	writeJSON(w, http.StatusOK, response)
}
