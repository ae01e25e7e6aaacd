// Package adapter implements the verdict façade: the request/verdict
// boundary the HTTP surface calls into, wired to the TW and BL/WL stores
// and the webhook pipeline.
package adapter

import (
	"fmt"
	"net/netip"

	"github.com/loginguard/engine/internal/blwl"
	"github.com/loginguard/engine/internal/tw"
	"github.com/loginguard/engine/internal/webhook"
)

// Status names the three verdicts a login event can resolve to.
type Status int

const (
	StatusAllow Status = 0
	StatusDeny Status = 1
	StatusTarpit Status = 2
)

// LoginTuple is the structured record describing one authentication event.
type LoginTuple struct {
	Login string
	Remote netip.Addr
	PWHash string
	Success *bool
	Attrs map[string]string
	AttrsMV map[string][]string
	DeviceID string
	Protocol string
	PolicyReject bool
}

// Verdict is allow's return value.
type Verdict struct {
	Status Status
	Msg string
	Attrs map[string]string
}

// PolicyFunc is the embedded configuration/scripting host collaborator:
// called after the adapter's own BL/WL and threshold checks, able to
// override the verdict. A nil PolicyFunc leaves the adapter's own verdict
// unchanged.
type PolicyFunc interface {
	Evaluate(tuple LoginTuple, base Verdict) Verdict
}

// Thresholds configures the default threshold policy applied before any
// PolicyFunc callout.
type Thresholds struct {
	// Field is the TW field queried for the failure count (e.g. "fail").
	Field string
	// DenyAt and TarpitAt are inclusive thresholds on that field's
	// aggregate value; DenyAt takes priority when both are crossed.
	DenyAt int64
	TarpitAt int64
}

// Adapter is re-entrant: concurrent Report/Allow calls on disjoint keys
// proceed in parallel, since every collaborator it touches (TW shards,
// the BL/WL store's single rwlock, the webhook queue) is already safe for
// concurrent use.
type Adapter struct {
	reportStore *tw.Store
	bl *blwl.Store
	wl *blwl.Store
	hooks *webhook.Registry
	dispatcher *webhook.Dispatcher
	policy PolicyFunc
	thresholds Thresholds
}

func New(reportStore *tw.Store, bl, wl *blwl.Store, hooks *webhook.Registry, dispatcher *webhook.Dispatcher, thresholds Thresholds) *Adapter {
	return &Adapter{
		reportStore: reportStore, bl: bl, wl: wl,
		hooks: hooks, dispatcher: dispatcher, thresholds: thresholds,
	}
}

// SetPolicy installs the policy-scripting host collaborator.
func (a *Adapter) SetPolicy(p PolicyFunc) { a.policy = p }

// BL, WL, and ReportStore expose the underlying stores to the admin
// surface (internal/httpserver's blwl/tw routes, loginguardctl).
func (a *Adapter) BL() *blwl.Store { return a.bl }
func (a *Adapter) WL() *blwl.Store { return a.wl }
func (a *Adapter) ReportStore() *tw.Store { return a.reportStore }

// Report increments TW counters for the tuple's login, address, and
// composite keys, and fires the "report" webhook event.
func (a *Adapter) Report(t LoginTuple) {
	if a.reportStore != nil {
		failed := t.Success == nil || !*t.Success
		if failed {
			a.reportStore.Add(tw.StringVariant(t.Login), "fail", tw.IntVariant(1), 0, true)
			if t.Remote.IsValid() {
				a.reportStore.Add(tw.AddressKey(t.Remote), "fail", tw.IntVariant(1), 0, true)
				a.reportStore.Add(tw.StringVariant(compositeKey(t.Login, t.Remote)), "fail", tw.IntVariant(1), 0, true)
			}
		}
		if t.PolicyReject {
			a.reportStore.Add(tw.StringVariant(t.Login), "policy_reject", tw.IntVariant(1), 0, true)
		}
	}
	a.fireEvent(webhook.EventReport, t, nil)
}

// Reset clears a TW key's counters and fires the "reset" webhook event.
func (a *Adapter) Reset(login string) {
	if a.reportStore != nil {
		a.reportStore.Reset(tw.StringVariant(login), true)
	}
	a.fireEvent(webhook.EventReset, LoginTuple{Login: login}, nil)
}

// Allow consults BL/WL first (short-circuiting deny/allow), then the
// threshold policy over TW aggregates, then the PolicyFunc callout.
func (a *Adapter) Allow(t LoginTuple) Verdict {
	if a.bl != nil && a.blCheck(t) {
		v := Verdict{Status: StatusDeny, Msg: "blocklisted", Attrs: map[string]string{}}
		return a.finish(t, v)
	}
	if a.wl != nil && a.wlCheck(t) {
		v := Verdict{Status: StatusAllow, Msg: "allowlisted", Attrs: map[string]string{}}
		return a.finish(t, v)
	}

	v := Verdict{Status: StatusAllow, Msg: "ok", Attrs: map[string]string{}}
	if a.reportStore != nil && a.thresholds.Field != "" {
		count, _ := a.reportStore.Get(tw.StringVariant(t.Login), a.thresholds.Field, "")
		switch {
		case a.thresholds.DenyAt > 0 && count >= a.thresholds.DenyAt:
			v = Verdict{Status: StatusDeny, Msg: fmt.Sprintf("threshold exceeded: %d", count), Attrs: map[string]string{}}
		case a.thresholds.TarpitAt > 0 && count >= a.thresholds.TarpitAt:
			v = Verdict{Status: StatusTarpit, Msg: fmt.Sprintf("threshold warning: %d", count), Attrs: map[string]string{}}
		}
	}
	return a.finish(t, v)
}

func (a *Adapter) blCheck(t LoginTuple) bool {
	if t.Remote.IsValid() && a.bl.Check(blwl.KindIP, t.Remote.String()) {
		return true
	}
	if t.Login != "" && a.bl.Check(blwl.KindLogin, t.Login) {
		return true
	}
	if t.Remote.IsValid() && t.Login != "" && a.bl.Check(blwl.KindIPLogin, compositeKey(t.Login, t.Remote)) {
		return true
	}
	return false
}

func (a *Adapter) wlCheck(t LoginTuple) bool {
	if t.Remote.IsValid() && a.wl.Check(blwl.KindIP, t.Remote.String()) {
		return true
	}
	if t.Login != "" && a.wl.Check(blwl.KindLogin, t.Login) {
		return true
	}
	if t.Remote.IsValid() && t.Login != "" && a.wl.Check(blwl.KindIPLogin, compositeKey(t.Login, t.Remote)) {
		return true
	}
	return false
}

func (a *Adapter) finish(t LoginTuple, v Verdict) Verdict {
	if a.policy != nil {
		v = a.policy.Evaluate(t, v)
	}
	a.fireEvent(webhook.EventAllow, t, &v)
	return v
}

func (a *Adapter) fireEvent(event webhook.Event, t LoginTuple, v *Verdict) {
	if a.hooks == nil || a.dispatcher == nil {
		return
	}
	for _, h := range a.hooks.ForEvent(event) {
		payload := map[string]any{"login": t.Login, "remote": t.Remote.String(), "device_id": t.DeviceID, "protocol": t.Protocol}
		if v != nil {
			payload["status"] = int(v.Status)
			payload["msg"] = v.Msg
		}
		body, err := webhook.MarshalPayload(payload)
		if err != nil {
			continue
		}
		a.dispatcher.RunHook(h, event, body)
	}
}

func compositeKey(login string, addr netip.Addr) string {
	return login + "@" + addr.String()
}
