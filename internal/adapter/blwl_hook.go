package adapter

import (
	"github.com/loginguard/engine/internal/blwl"
	"github.com/loginguard/engine/internal/webhook"
)

// blwlEventPayload is the wire body for every BL/WL-triggered webhook
// event: add/del/expire on either list. Field order matters here since
// json.Marshal on a struct walks it in declaration order.
type blwlEventPayload struct {
	Key string `json:"key"`
	BLType string `json:"bl_type"`
	Reason string `json:"reason"`
	ExpireSecs int64 `json:"expire_secs"`
}

// blwlHook implements blwl.Hook by routing a store mutation to every
// webhook registered for the fired event.
type blwlHook struct {
	hooks *webhook.Registry
	dispatcher *webhook.Dispatcher
}

// NewBLWLHook builds the collaborator bl.SetHook/wl.SetHook install so that
// addbl, delbl, expirebl, addwl, delwl, and expirewl actually produce
// deliveries through the same dispatcher the adapter's own report/allow
// events use.
func NewBLWLHook(hooks *webhook.Registry, dispatcher *webhook.Dispatcher) blwl.Hook {
	return &blwlHook{hooks: hooks, dispatcher: dispatcher}
}

// Fire builds the {key, bl_type, reason, expire_secs} body and enqueues one
// delivery per active hook subscribed to event.
func (h *blwlHook) Fire(event string, kind blwl.Kind, key, reason string, ttlSeconds int64) {
	if h.hooks == nil || h.dispatcher == nil {
		return
	}
	ev := webhook.Event(event)
	subscribers := h.hooks.ForEvent(ev)
	if len(subscribers) == 0 {
		return
	}
	body, err := webhook.MarshalPayload(blwlEventPayload{
		Key: key, BLType: string(kind), Reason: reason, ExpireSecs: ttlSeconds,
	})
	if err != nil {
		return
	}
	for _, hk := range subscribers {
		h.dispatcher.RunHook(hk, ev, body)
	}
}
