package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/loginguard/engine/internal/blwl"
	"github.com/loginguard/engine/internal/tw"
	"github.com/loginguard/engine/internal/webhook"
)

// kindFromName maps the wire/CLI kind names to blwl.Kind, rejecting anything
// else rather than silently defaulting to one partition.
func kindFromName(name string) (blwl.Kind, bool) {
	switch name {
	case "ip":
		return blwl.KindIP, true
	case "login":
		return blwl.KindLogin, true
	case "ip_login":
		return blwl.KindIPLogin, true
	default:
		return "", false
	}
}

func (s *Server) listStore(listName string) *blwl.Store {
	switch listName {
	case "bl":
		return s.adapter.BL()
	case "wl":
		return s.adapter.WL()
	default:
		return nil
	}
}

type blwlAddRequest struct {
	Kind string `json:"kind"`
	Key string `json:"key"`
	TTLSeconds int64 `json:"ttl_seconds"`
	Reason string `json:"reason"`
}

// handleBLWLAdd handles POST /blwl/{list}, adding an entry to the bl or wl
// store.
func (s *Server) handleBLWLAdd(w http.ResponseWriter, r *http.Request) {
	store := s.listStore(chi.URLParam(r, "list"))
	if store == nil {
		http.Error(w, "unknown list", http.StatusNotFound)
		return
	}
	var req blwlAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
		return
	}
	kind, ok := kindFromName(req.Kind)
	if !ok {
		http.Error(w, "unknown kind", http.StatusBadRequest)
		return
	}
	if err := store.Add(kind, req.Key, req.TTLSeconds, req.Reason, true); err != nil {
		http.Error(w, "add failed: "+err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleBLWLDelete handles DELETE /blwl/{list}/{kind}/{key}.
func (s *Server) handleBLWLDelete(w http.ResponseWriter, r *http.Request) {
	store := s.listStore(chi.URLParam(r, "list"))
	if store == nil {
		http.Error(w, "unknown list", http.StatusNotFound)
		return
	}
	kind, ok := kindFromName(chi.URLParam(r, "kind"))
	if !ok {
		http.Error(w, "unknown kind", http.StatusBadRequest)
		return
	}
	if err := store.Delete(kind, chi.URLParam(r, "key"), true); err != nil {
		http.Error(w, "delete failed: "+err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type blwlEntryWire struct {
	Key string `json:"key"`
	Expiration int64 `json:"expiration"`
	Reason string `json:"reason"`
	Kind string `json:"kind"`
}

// handleBLWLList handles GET /blwl/{list}/{kind}.
func (s *Server) handleBLWLList(w http.ResponseWriter, r *http.Request) {
	store := s.listStore(chi.URLParam(r, "list"))
	if store == nil {
		http.Error(w, "unknown list", http.StatusNotFound)
		return
	}
	kind, ok := kindFromName(chi.URLParam(r, "kind"))
	if !ok {
		http.Error(w, "unknown kind", http.StatusBadRequest)
		return
	}
	entries := store.List(kind)
	out := make([]blwlEntryWire, 0, len(entries))
	for _, e := range entries {
		out = append(out, blwlEntryWire{
			Key: e.Key, Expiration: e.Expiration.Unix(), Reason: e.Reason, Kind: string(e.Kind),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleTWGet handles GET /tw/{store}/{field}?key=..., the read side of a
// named counter.
func (s *Server) handleTWGet(w http.ResponseWriter, r *http.Request) {
	store := s.adapter.ReportStore()
	if store == nil || chi.URLParam(r, "store") != "report" {
		http.Error(w, "unknown store", http.StatusNotFound)
		return
	}
	key := r.URL.Query().Get("key")
	if key == "" {
		http.Error(w, "missing key", http.StatusBadRequest)
		return
	}
	field := chi.URLParam(r, "field")
	count, ok := store.Get(tw.StringVariant(key), field, "")
	writeJSON(w, http.StatusOK, map[string]any{"value": count, "found": ok})
}

// handleTWReset handles POST /tw/{store}/reset?key=..., clearing one key's
// counters and firing the "reset" webhook event.
func (s *Server) handleTWReset(w http.ResponseWriter, r *http.Request) {
	if s.adapter.ReportStore() == nil || chi.URLParam(r, "store") != "report" {
		http.Error(w, "unknown store", http.StatusNotFound)
		return
	}
	key := r.URL.Query().Get("key")
	if key == "" {
		http.Error(w, "missing key", http.StatusBadRequest)
		return
	}
	s.adapter.Reset(key)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type hookRegisterRequest struct {
	Name string `json:"name"`
	Events []string `json:"events"`
	Active bool `json:"active"`
	Config map[string]string `json:"config"`
}

// handleHookRegister handles POST /hooks, registering a new webhook
// descriptor.
func (s *Server) handleHookRegister(w http.ResponseWriter, r *http.Request) {
	var req hookRegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
		return
	}
	events := make(map[webhook.Event]bool, len(req.Events))
	for _, e := range req.Events {
		events[webhook.Event(e)] = true
	}
	d := &webhook.Descriptor{Name: req.Name, Events: events, Active: req.Active, Config: req.Config}
	id, err := s.hooks.Register(d)
	if err != nil {
		http.Error(w, "register failed: "+err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": strconv.FormatUint(uint64(id), 10)})
}
