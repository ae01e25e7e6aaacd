package replication

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/loginguard/engine/internal/blwl"
	"github.com/loginguard/engine/internal/metrics"
	"github.com/loginguard/engine/internal/tw"
)

type fakeDispatcher struct {
	stores map[string]*tw.Store
	bl *blwl.Store
	wl *blwl.Store
}

func (f *fakeDispatcher) TWStore(name string) (*tw.Store, bool) {
	s, ok := f.stores[name]
	return s, ok
}
func (f *fakeDispatcher) BLStore() *blwl.Store { return f.bl }
func (f *fakeDispatcher) WLStore() *blwl.Store { return f.wl }

func silentLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// TestReplicationRoundTrip checks that a mutation applied on the sending
// node produces an equivalent applied mutation on the receiving node after
// it crosses the encrypted transport.
func TestReplicationRoundTrip(t *testing.T) {
	reg := metrics.New()
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}

	senderStore := tw.New(tw.Config{
		Name: "ipstore", WindowSize: 60, NumWindows: 10, NumShards: 2,
		V4Prefix: 32, V6Prefix: 128, SoftMaxEntries: 1000,
		Schema: map[string]tw.FieldType{"logins": tw.FieldInt},
	}, reg)
	receiverStore := tw.New(tw.Config{
		Name: "ipstore", WindowSize: 60, NumWindows: 10, NumShards: 2,
		V4Prefix: 32, V6Prefix: 128, SoftMaxEntries: 1000,
		Schema: map[string]tw.FieldType{"logins": tw.FieldInt},
	}, reg)

	bl := blwl.New("bl", reg)
	wl := blwl.New("wl", reg)
	dispatcher := &fakeDispatcher{stores: map[string]*tw.Store{"ipstore": receiverStore}, bl: bl, wl: wl}

	receiver, err := New("127.0.0.1:0", nil, key, dispatcher, reg, silentLogger())
	if err != nil {
		t.Fatalf("new receiver transport: %v", err)
	}
	defer receiver.Close()
	go receiver.Listen()

	receiverAddr := receiver.conn.LocalAddr().String()
	sender, err := New("127.0.0.1:0", []string{receiverAddr}, key, dispatcher, reg, silentLogger())
	if err != nil {
		t.Fatalf("new sender transport: %v", err)
	}
	defer sender.Close()

	senderStore.SetReplicator(sender)
	senderStore.EnableReplication()

	key4 := tw.StringVariant("1.2.3.4")
	senderStore.Add(key4, "logins", tw.IntVariant(3), 0, true)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if v, ok := receiverStore.GetCurrent(key4, "logins", ""); ok && v == 3 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("replicated mutation did not arrive at receiver within deadline")
}

// TestReplicationRoundTripBLWL exercises the BL/WL side of the same path.
func TestReplicationRoundTripBLWL(t *testing.T) {
	reg := metrics.New()
	key := make([]byte, 32)

	senderBL := blwl.New("bl", reg)
	receiverBL := blwl.New("bl", reg)
	dispatcher := &fakeDispatcher{
		stores: map[string]*tw.Store{},
		bl: receiverBL,
		wl: blwl.New("wl", reg),
	}

	receiver, err := New("127.0.0.1:0", nil, key, dispatcher, reg, silentLogger())
	if err != nil {
		t.Fatalf("new receiver transport: %v", err)
	}
	defer receiver.Close()
	go receiver.Listen()

	sender, err := New("127.0.0.1:0", []string{receiver.conn.LocalAddr().String()}, key, dispatcher, reg, silentLogger())
	if err != nil {
		t.Fatalf("new sender transport: %v", err)
	}
	defer sender.Close()

	senderBL.SetReplicator(sender)
	senderBL.Add(blwl.KindIP, "9.9.9.9/32", 300, "test", true)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if receiverBL.Check(blwl.KindIP, "9.9.9.9") {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("replicated bl mutation did not arrive at receiver within deadline")
}
