// Package replication implements symmetric-encrypted UDP fan-out to
// configured peers, idempotent application of inbound mutations, and the
// nonce discipline that keeps replayed or reordered datagrams from being
// applied twice.
package replication

import (
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/loginguard/engine/internal/blwl"
	"github.com/loginguard/engine/internal/metrics"
	"github.com/loginguard/engine/internal/replication/replpb"
	"github.com/loginguard/engine/internal/tw"
)

// Dispatcher resolves inbound mutations to the right store.
type Dispatcher interface {
	TWStore(dbName string) (*tw.Store, bool)
	BLStore() *blwl.Store
	WLStore() *blwl.Store
}

// peerSender holds the address and send-nonce state for one configured peer;
// every peer is sent to over the Transport's single shared UDP socket.
type peerSender struct {
	addr *net.UDPAddr
	nonce *sendNonce
}

// Transport fans outbound mutations to every configured peer over UDP and
// listens for inbound datagrams from them, applying operations with
// replicate=false.
type Transport struct {
	key []byte
	conn *net.UDPConn
	peers []*peerSender
	recv map[string]*recvNonceState
	recvMu sync.Mutex

	dispatcher Dispatcher
	metrics *metrics.Registry
	log *logrus.Entry
}

// New binds listenAddr and prepares senders for each peer address. key must
// be exactly 32 bytes (chacha20poly1305.KeySize).
func New(listenAddr string, peerAddrs []string, key []byte, d Dispatcher, reg *metrics.Registry, log *logrus.Entry) (*Transport, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", listenAddr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}

	t := &Transport{
		key: key,
		conn: conn,
		recv: make(map[string]*recvNonceState),
		dispatcher: d,
		metrics: reg,
		log: log,
	}
	for _, a := range peerAddrs {
		pa, err := net.ResolveUDPAddr("udp", a)
		if err != nil {
			return nil, err
		}
		sn, err := newSendNonce()
		if err != nil {
			return nil, err
		}
		t.peers = append(t.peers, &peerSender{addr: pa, nonce: sn})
	}
	return t, nil
}

// Listen runs the inbound receive loop until the socket is closed.
func (t *Transport) Listen() {
	buf := make([]byte, 65536)
	for {
		n, addr, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			return // socket closed
		}
		data := append([]byte(nil), buf[:n]...)
		go t.handleInbound(addr.String(), data)
	}
}

// Close stops the receive loop by closing the underlying socket.
func (t *Transport) Close() error { return t.conn.Close() }

func (t *Transport) recvStateFor(sender string) *recvNonceState {
	t.recvMu.Lock()
	defer t.recvMu.Unlock()
	rs, ok := t.recv[sender]
	if !ok {
		rs = &recvNonceState{}
		t.recv[sender] = rs
	}
	return rs
}

func (t *Transport) dropped(reason string) {
	if t.metrics != nil {
		t.metrics.ReplicationDroppedTotal.WithLabelValues(reason).Inc()
	}
}

// handleInbound decrypts, validates the nonce, parses the outer frame and
// dispatches on type. Unparseable frames, unknown types, and decryption
// failures are dropped with a log line; the connection itself is never
// torn down.
func (t *Transport) handleInbound(sender string, blob []byte) {
	nonce, plaintext, err := open(t.key, blob)
	if err != nil {
		t.log.WithField("sender", sender).Warn("replication: decrypt failed")
		t.dropped("decrypt")
		return
	}
	if !t.recvStateFor(sender).accept(nonce) {
		t.log.WithField("sender", sender).Warn("replication: nonce did not advance")
		t.dropped("nonce")
		return
	}

	env, err := replpb.UnmarshalEnvelope(plaintext)
	if err != nil {
		t.log.WithField("sender", sender).Warn("replication: unparseable frame")
		t.dropped("parse")
		return
	}
	if t.metrics != nil {
		t.metrics.ReplicationRecvTotal.Inc()
	}

	switch env.Type {
	case replpb.RepTW:
		t.applyTW(env.Payload)
	case replpb.RepBL:
		t.applyBLWL(env.Payload, t.dispatcher.BLStore())
	case replpb.RepWL:
		t.applyBLWL(env.Payload, t.dispatcher.WLStore())
	default:
		t.dropped("unknown_type")
	}
}

func (t *Transport) applyTW(payload []byte) {
	m, err := replpb.UnmarshalTWMutation(payload)
	if err != nil {
		t.dropped("parse_tw")
		return
	}
	store, ok := t.dispatcher.TWStore(m.DBName)
	if !ok {
		t.dropped("unknown_db")
		return
	}
	store.ApplyMutation(tw.Mutation{
		Op: tw.Op(m.Op), Key: m.Key, Field: m.FieldName,
		StrParam: m.StrParam, IntParam: m.IntParam,
		HasStr: m.HasStrParam, HasInt: m.HasIntParam,
	})
}

func (t *Transport) applyBLWL(payload []byte, store *blwl.Store) {
	m, err := replpb.UnmarshalBLWLMutation(payload)
	if err != nil {
		t.dropped("parse_blwl")
		return
	}
	store.ApplyMutation(blwl.Mutation{
		Op: blwl.Op(m.Op), Kind: blwl.Kind(m.Kind), Key: m.Key,
		TTL: m.TTL, Reason: m.Reason,
	})
}

// broadcast seals and sends payload (already wrapped in an outer Envelope)
// to every configured peer. Failures are logged but never fail the local
// mutation that triggered them.
func (t *Transport) broadcast(envelope []byte) {
	for _, p := range t.peers {
		nonce := p.nonce.next()
		blob, err := seal(t.key, nonce, envelope)
		if err != nil {
			t.log.WithError(err).Warn("replication: encrypt failed")
			continue
		}
		if _, err := t.conn.WriteToUDP(blob, p.addr); err != nil {
			t.log.WithError(err).WithField("peer", p.addr.String()).Warn("replication: send failed")
			continue
		}
		if t.metrics != nil {
			t.metrics.ReplicationSentTotal.Inc()
		}
	}
}

// ReplicateTW implements tw.Replicator.
func (t *Transport) ReplicateTW(m tw.Mutation) {
	sub := &replpb.TWMutation{
		DBName: m.DBName, Op: string(m.Op), Key: m.Key,
		FieldName: m.Field, HasFieldName: m.Field != "",
		StrParam: m.StrParam, HasStrParam: m.HasStr,
		IntParam: m.IntParam, HasIntParam: m.HasInt,
	}
	env := &replpb.Envelope{Type: replpb.RepTW, Payload: sub.Marshal()}
	t.broadcast(env.Marshal())
}

// ReplicateBLWL implements blwl.Replicator. listName is "bl" or "wl".
func (t *Transport) ReplicateBLWL(listName string, m blwl.Mutation) {
	sub := &replpb.BLWLMutation{
		Op: string(m.Op), Kind: string(m.Kind), Key: m.Key,
		TTL: m.TTL, HasTTL: m.TTL != 0,
		Reason: m.Reason, HasReason: m.Reason != "",
	}
	repType := replpb.RepBL
	if listName == "wl" {
		repType = replpb.RepWL
	}
	env := &replpb.Envelope{Type: repType, Payload: sub.Marshal()}
	t.broadcast(env.Marshal())
}
