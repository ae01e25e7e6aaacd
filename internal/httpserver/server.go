// Package httpserver is the thin request/verdict HTTP surface: report/allow
// endpoints, adapter-registered custom commands, and the metrics endpoint.
package httpserver

import (
	"encoding/json"
	"net"
	"net/http"
	"net/netip"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/loginguard/engine/internal/adapter"
	"github.com/loginguard/engine/internal/metrics"
	"github.com/loginguard/engine/internal/webhook"
)

// Config carries the server-level knobs: listen address, basic auth
// password, and the source ACL.
type Config struct {
	ListenAddr string
	ListenPort int
	BasicAuthPassword string
	ACL []string
}

type Server struct {
	router chi.Router
	httpServer *http.Server
	adapter *adapter.Adapter
	hooks *webhook.Registry
	dispatcher *webhook.Dispatcher
	metrics *metrics.Registry
	log *logrus.Entry
}

func New(cfg Config, ad *adapter.Adapter, hooks *webhook.Registry, dispatcher *webhook.Dispatcher, reg *metrics.Registry, log *logrus.Entry) *Server {
	s := &Server{adapter: ad, hooks: hooks, dispatcher: dispatcher, metrics: reg, log: log}

	r := chi.NewRouter()
	nets := ParseACL(cfg.ACL, log)
	r.Use(acl(nets, log))

	r.Group(func(r chi.Router) {
		r.Use(basicAuth(cfg.BasicAuthPassword, log))
		r.Post("/", s.handleCommand)
		r.Post("/command/{name}", s.handleCustomCommand)
		r.Post("/blwl/{list}", s.handleBLWLAdd)
		r.Delete("/blwl/{list}/{kind}/{key}", s.handleBLWLDelete)
		r.Get("/blwl/{list}/{kind}", s.handleBLWLList)
		r.Get("/tw/{store}/{field}", s.handleTWGet)
		r.Post("/tw/{store}/reset", s.handleTWReset)
		r.Post("/hooks", s.handleHookRegister)
	})
	r.Get("/metrics", s.metrics.Handler().ServeHTTP)

	s.router = r
	addr := net.JoinHostPort(cfg.ListenAddr, strconv.Itoa(cfg.ListenPort))
	s.httpServer = &http.Server{Addr: addr, Handler: r}
	return s
}

func (s *Server) ListenAndServe() error { return s.httpServer.ListenAndServe() }
func (s *Server) Close() error { return s.httpServer.Close() }

// handleCommand dispatches POST /?command=report|allow.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Query().Get("command") {
	case "report":
		s.handleReport(w, r)
	case "allow":
		s.handleAllow(w, r)
	default:
		http.Error(w, "unknown command", http.StatusBadRequest)
	}
}

// loginTupleWire is the JSON wire shape of login_tuple.
type loginTupleWire struct {
	Login string `json:"login"`
	Remote string `json:"remote"`
	PWHash string `json:"pwhash"`
	Success *bool `json:"success,omitempty"`
	Attrs map[string]string `json:"attrs,omitempty"`
	AttrsMV map[string][]string `json:"attrs_mv,omitempty"`
	DeviceID string `json:"device_id,omitempty"`
	Protocol string `json:"protocol,omitempty"`
	PolicyReject bool `json:"policy_reject,omitempty"`
}

func decodeTuple(r *http.Request) (adapter.LoginTuple, error) {
	var w loginTupleWire
	if err := json.NewDecoder(r.Body).Decode(&w); err != nil {
		return adapter.LoginTuple{}, err
	}
	var addr netip.Addr
	if w.Remote != "" {
		a, err := netip.ParseAddr(w.Remote)
		if err != nil {
			return adapter.LoginTuple{}, err
		}
		addr = a
	}
	return adapter.LoginTuple{
		Login: w.Login, Remote: addr, PWHash: w.PWHash, Success: w.Success,
		Attrs: w.Attrs, AttrsMV: w.AttrsMV, DeviceID: w.DeviceID,
		Protocol: w.Protocol, PolicyReject: w.PolicyReject,
	}, nil
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	tuple, err := decodeTuple(r)
	if err != nil {
		http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
		return
	}
	s.adapter.Report(tuple)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAllow(w http.ResponseWriter, r *http.Request) {
	tuple, err := decodeTuple(r)
	if err != nil {
		http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
		return
	}
	v := s.adapter.Allow(tuple)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": int(v.Status), "msg": v.Msg, "attrs": v.Attrs,
	})
}

// handleCustomCommand triggers a synchronous ping delivery of the named
// custom hook, the adapter-registered `/command/<name>` surface.
func (s *Server) handleCustomCommand(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	found, ok := s.hooks.ByName(name)
	if !ok {
		http.Error(w, "unknown command", http.StatusNotFound)
		return
	}
	if err := s.dispatcher.PingHook(found); err != nil {
		http.Error(w, "command failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
