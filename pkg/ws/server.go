// Package ws implements the optional WebSocket adapter (spec.md §1, §6):
// a VISS-flavored JSON request/response protocol over a single
// connection, offering the same get/set/subscribe/actuate operations as
// the gRPC variants for browser and lightweight clients that cannot speak
// gRPC. Uses gorilla/websocket, following the same secondary-listener
// bootstrap pattern the server's own HTTP endpoints use for standing up
// a listener alongside the primary gRPC service.
package ws

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sdv-broker/databroker/internal/authn"
	"github.com/sdv-broker/databroker/internal/broker"
	"github.com/sdv-broker/databroker/internal/config"
	"github.com/sdv-broker/databroker/internal/facade"
	"github.com/sdv-broker/databroker/internal/logger"
	"github.com/sdv-broker/databroker/internal/permission"
	"github.com/sdv-broker/databroker/pkg/grpc/kuksaval"
)

// Request is one client-to-broker frame.
type Request struct {
	RequestID string         `json:"requestId,omitempty"`
	Action    string         `json:"action"`
	Path      string         `json:"path,omitempty"`
	Value     *kuksaval.Value `json:"value,omitempty"`
}

// Response is one broker-to-client frame: either the synchronous result
// of a get/set/actuate/subscribe request, or an asynchronous
// "update" frame pushed by a live subscription.
type Response struct {
	RequestID string          `json:"requestId,omitempty"`
	Action    string          `json:"action"`
	Path      string          `json:"path,omitempty"`
	Value     *kuksaval.Value `json:"value,omitempty"`
	Timestamp string          `json:"ts,omitempty"`
	Error     string          `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// NewServer builds the *http.Server fronting the WebSocket adapter.
// authCfg configures JWT bearer verification exactly as the gRPC
// adapters do; a bearer token is taken from the "token" query parameter
// or the "Authorization" header since browser WebSocket clients cannot
// always set arbitrary headers during the handshake. A misconfigured
// authCfg is logged and the server falls back to granting every caller
// permission.AllowAll, the same local-development posture
// config.AuthConfig documents for its gRPC counterparts.
func NewServer(f *facade.Facade, authCfg config.AuthConfig) *http.Server {
	verifier, err := kuksaval.BuildVerifier(authCfg)
	if err != nil {
		logger.Error("websocket adapter: failed to build JWT verifier, falling back to unauthenticated access", logger.Err(err))
		verifier = nil
	}

	h := &handler{f: f, verifier: verifier}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.serveWS)
	return &http.Server{Handler: mux}
}

type handler struct {
	f        *facade.Facade
	verifier *authn.Verifier
}

func (h *handler) serveWS(w http.ResponseWriter, r *http.Request) {
	perm := h.resolvePermission(r)
	if perm == nil {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", logger.Err(err))
		return
	}
	defer conn.Close()

	clientIP := clientIP(r)
	logger.Info("websocket connection established",
		logger.Protocol("websocket"), logger.Caller(perm.Subject), logger.ClientIP(clientIP))

	c := &connection{conn: conn, f: h.f, perm: *perm}
	c.serve(r.Context())
}

// clientIP returns the request's remote address without its port, falling
// back to the raw RemoteAddr if it cannot be split.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (h *handler) resolvePermission(r *http.Request) *permission.Permission {
	if h.verifier == nil {
		p := permission.AllowAll("ws-anonymous")
		return &p
	}
	token := r.URL.Query().Get("token")
	if token == "" {
		if auth := r.Header.Get("Authorization"); len(auth) > 7 && auth[:7] == "Bearer " {
			token = auth[7:]
		}
	}
	if token == "" {
		return nil
	}
	p, err := h.verifier.Verify(token)
	if err != nil {
		return nil
	}
	return &p
}

// connection serializes writes to a single WebSocket conn: the request
// loop and any live subscription pushers share it, so every send goes
// through sendMu.
type connection struct {
	conn *websocket.Conn
	f    *facade.Facade
	perm permission.Permission

	sendMu sync.Mutex
}

func (c *connection) send(resp Response) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if err := c.conn.WriteJSON(resp); err != nil {
		logger.Warn("websocket send failed", logger.Err(err))
	}
}

func (c *connection) serve(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	for {
		var req Request
		if err := c.conn.ReadJSON(&req); err != nil {
			return
		}
		c.handle(ctx, req)
	}
}

func (c *connection) handle(ctx context.Context, req Request) {
	switch req.Action {
	case "get":
		c.handleGet(req)
	case "set":
		c.handleSet(req)
	case "actuate":
		c.handleActuate(req)
	case "subscribe":
		go c.handleSubscribe(ctx, req)
	default:
		logger.Warn("websocket request rejected",
			logger.Operation(req.Action), logger.Path(req.Path), logger.Caller(c.perm.Subject))
		c.send(Response{RequestID: req.RequestID, Action: req.Action, Error: "unknown action"})
	}
}

func (c *connection) handleGet(req Request) {
	entry, err := c.f.GetByPath(c.perm, req.Path)
	if err != nil {
		c.send(Response{RequestID: req.RequestID, Action: "get", Path: req.Path, Error: err.Error()})
		return
	}
	c.send(Response{
		RequestID: req.RequestID,
		Action:    "get",
		Path:      req.Path,
		Value:     kuksaval.FromValue(entry.Datapoint.Value),
		Timestamp: entry.Datapoint.Timestamp.Format(time.RFC3339Nano),
	})
}

func (c *connection) handleSet(req Request) {
	id, ok := c.f.ResolveID(req.Path)
	if !ok {
		c.send(Response{RequestID: req.RequestID, Action: "set", Path: req.Path, Error: "unknown signal"})
		return
	}
	v, err := kuksaval.ToValue(req.Value)
	if err != nil {
		c.send(Response{RequestID: req.RequestID, Action: "set", Path: req.Path, Error: err.Error()})
		return
	}
	update := &broker.EntryUpdate{Datapoint: &broker.Datapoint{Timestamp: time.Now(), Value: v}}
	_, errs := c.f.UpdateEntries(c.perm, []broker.BatchEntry{{ID: id, Update: update}})
	if err, failed := errs[id]; failed {
		c.send(Response{RequestID: req.RequestID, Action: "set", Path: req.Path, Error: err.Error()})
		return
	}
	c.send(Response{RequestID: req.RequestID, Action: "set", Path: req.Path})
}

func (c *connection) handleActuate(req Request) {
	id, ok := c.f.ResolveID(req.Path)
	if !ok {
		c.send(Response{RequestID: req.RequestID, Action: "actuate", Path: req.Path, Error: "unknown signal"})
		return
	}
	v, err := kuksaval.ToValue(req.Value)
	if err != nil {
		c.send(Response{RequestID: req.RequestID, Action: "actuate", Path: req.Path, Error: err.Error()})
		return
	}
	if _, err := c.f.Actuate(c.perm, []facade.ActuationRequest{{ID: id, Value: v}}); err != nil {
		c.send(Response{RequestID: req.RequestID, Action: "actuate", Path: req.Path, Error: err.Error()})
		return
	}
	c.send(Response{RequestID: req.RequestID, Action: "actuate", Path: req.Path})
}

func (c *connection) handleSubscribe(ctx context.Context, req Request) {
	id, ok := c.f.ResolveID(req.Path)
	if !ok {
		c.send(Response{RequestID: req.RequestID, Action: "subscribe", Path: req.Path, Error: "unknown signal"})
		return
	}
	entries := map[broker.ID]broker.FieldSet{id: broker.NewFieldSet(broker.FieldDatapoint)}
	sub, err := c.f.SubscribeChanges(ctx, c.perm, entries, 0)
	if err != nil {
		c.send(Response{RequestID: req.RequestID, Action: "subscribe", Path: req.Path, Error: err.Error()})
		return
	}
	c.send(Response{RequestID: req.RequestID, Action: "subscribe", Path: req.Path})

	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-sub.Chan():
			if !ok {
				return
			}
			for _, u := range batch.Updates {
				if u.ID != id || u.Update.Datapoint == nil {
					continue
				}
				c.send(Response{
					Action:    "update",
					Path:      req.Path,
					Value:     kuksaval.FromValue(u.Update.Datapoint.Value),
					Timestamp: u.Update.Datapoint.Timestamp.Format(time.RFC3339Nano),
				})
			}
		}
	}
}
