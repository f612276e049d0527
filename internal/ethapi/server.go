package ethapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// HeadNotifier feeds newHeads subscriptions with committed heights. A
// Server built with a nil HeadNotifier has no head source.
type HeadNotifier interface {
	Subscribe() (ch <-chan uint64, cancel func())
}

// Server serves the facade over HTTP (plain JSON-RPC) and WebSocket
// (JSON-RPC plus eth_subscribe), per §6.
type Server struct {
	api      *API
	heads    HeadNotifier
	upgrader websocket.Upgrader
}

// NewServer returns a Server. heads may be nil, in which case
// eth_subscribe("newHeads") is rejected.
func NewServer(api *API, heads HeadNotifier) *Server {
	return &Server{
		api:   api,
		heads: heads,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the routed, CORS-wrapped HTTP handler: POST / for
// plain JSON-RPC, GET /ws for the WebSocket upgrade.
func (s *Server) Handler(allowedOrigins []string) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", s.handleHTTP).Methods(http.MethodPost)
	r.HandleFunc("/ws", s.handleWS)

	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(r)
}

func (s *Server) handleHTTP(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, rpcResponse{JSONRPC: "2.0", Error: &RPCError{Code: CodeParseError, Message: err.Error()}})
		return
	}
	writeJSON(w, s.dispatch(r.Context(), req))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	for {
		var req rpcRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		if req.Method == "eth_subscribe" {
			s.streamSubscription(r.Context(), conn, req)
			continue
		}
		if err := conn.WriteJSON(s.dispatch(r.Context(), req)); err != nil {
			return
		}
	}
}

// streamSubscription handles eth_subscribe("newHeads"): it acks with a
// subscription ID, then pushes eth_subscription notifications until the
// client disconnects or cancels.
func (s *Server) streamSubscription(ctx context.Context, conn *websocket.Conn, req rpcRequest) {
	var kind [1]string
	_ = json.Unmarshal(req.Params, &kind)

	if kind[0] != "newHeads" || s.heads == nil {
		_ = conn.WriteJSON(rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: &RPCError{
			Code: CodeMethodNotFound, Message: "unsupported subscription kind",
		}})
		return
	}

	subID := subscriptionID()
	_ = conn.WriteJSON(rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: subID})

	ch, cancel := s.heads.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case height, ok := <-ch:
			if !ok {
				return
			}
			notification := map[string]any{
				"jsonrpc": "2.0",
				"method":  "eth_subscription",
				"params": map[string]any{
					"subscription": subID,
					"result":       map[string]any{"number": hexUint64(height)},
				},
			}
			if err := conn.WriteJSON(notification); err != nil {
				return
			}
		}
	}
}

var subCounter uint64

// subscriptionID mints a short, unique-enough hex subscription
// identifier; subscriptions live only for the lifetime of the
// websocket connection, so a process-wide counter is sufficient.
func subscriptionID() string {
	subCounter++
	return hexUint64(subCounter)
}

func (s *Server) dispatch(ctx context.Context, req rpcRequest) rpcResponse {
	resp := rpcResponse{JSONRPC: "2.0", ID: req.ID}

	result, err := s.call(ctx, req.Method, req.Params)
	if err != nil {
		if rpcErr, ok := err.(*RPCError); ok {
			resp.Error = rpcErr
		} else {
			resp.Error = &RPCError{Code: CodeInternalError, Message: err.Error()}
		}
		return resp
	}
	resp.Result = result
	return resp
}

func (s *Server) call(ctx context.Context, method string, params json.RawMessage) (any, error) {
	switch method {
	case "eth_chainId":
		return s.api.ChainId(ctx)
	case "eth_blockNumber":
		return s.api.BlockNumber(ctx)
	case "eth_sendRawTransaction":
		var p [1]string
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, &RPCError{Code: CodeInvalidParams, Message: err.Error()}
		}
		return s.api.SendRawTransaction(ctx, p[0])
	case "eth_getTransactionByHash":
		var p [1]string
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, &RPCError{Code: CodeInvalidParams, Message: err.Error()}
		}
		return s.api.GetTransactionByHash(ctx, p[0])
	case "eth_getTransactionReceipt":
		var p [1]string
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, &RPCError{Code: CodeInvalidParams, Message: err.Error()}
		}
		return s.api.GetTransactionReceipt(ctx, p[0])
	case "eth_call":
		var p [1]CallArgs
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, &RPCError{Code: CodeInvalidParams, Message: err.Error()}
		}
		return s.api.Call(ctx, p[0])
	case "eth_estimateGas":
		var p [1]CallArgs
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, &RPCError{Code: CodeInvalidParams, Message: err.Error()}
		}
		return s.api.EstimateGas(ctx, p[0])
	case "eth_newFilter":
		return s.api.NewFilter(ctx)
	default:
		return nil, &RPCError{Code: CodeMethodNotFound, Message: "method not found: " + method}
	}
}

// serverTimeouts are applied by the caller constructing the http.Server,
// matching the teacher's convention of bounding read/write/idle phases.
var serverTimeouts = struct{ Read, Write, Idle time.Duration }{
	Read: 10 * time.Second, Write: 30 * time.Second, Idle: 120 * time.Second,
}

// Timeouts exposes the recommended http.Server timeouts for this facade.
func Timeouts() (read, write, idle time.Duration) {
	return serverTimeouts.Read, serverTimeouts.Write, serverTimeouts.Idle
}
