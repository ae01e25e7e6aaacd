package replpb

import "testing"

func TestEnvelopeRoundTrip(t *testing.T) {
	in := &Envelope{Type: RepTW, Payload: []byte("hello")}
	out, err := UnmarshalEnvelope(in.Marshal())
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Type != in.Type || string(out.Payload) != string(in.Payload) {
		t.Fatalf("roundtrip mismatch: got %+v", out)
	}
}

func TestTWMutationRoundTrip(t *testing.T) {
	in := &TWMutation{
		DBName: "ipstore", Op: "ADD", Key: "1.2.3.4",
		FieldName: "logins", HasFieldName: true,
		IntParam: 1, HasIntParam: true,
	}
	out, err := UnmarshalTWMutation(in.Marshal())
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if *out != *in {
		t.Fatalf("roundtrip mismatch: got %+v want %+v", out, in)
	}
}

func TestTWMutationRoundTripWithStrParam(t *testing.T) {
	in := &TWMutation{
		DBName: "loginstore", Op: "RESET_FIELD", Key: "bob",
		FieldName: "ua", HasFieldName: true,
		StrParam: "Mozilla/5.0", HasStrParam: true,
	}
	out, err := UnmarshalTWMutation(in.Marshal())
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if *out != *in {
		t.Fatalf("roundtrip mismatch: got %+v want %+v", out, in)
	}
}

func TestBLWLMutationRoundTrip(t *testing.T) {
	in := &BLWLMutation{
		Op: "ADD", Kind: "ip", Key: "10.0.0.0/8",
		TTL: 3600, HasTTL: true,
		Reason: "brute force", HasReason: true,
	}
	out, err := UnmarshalBLWLMutation(in.Marshal())
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if *out != *in {
		t.Fatalf("roundtrip mismatch: got %+v want %+v", out, in)
	}
}

func TestBLWLMutationRoundTripWithoutOptionalFields(t *testing.T) {
	in := &BLWLMutation{Op: "DELETE", Kind: "login", Key: "alice"}
	out, err := UnmarshalBLWLMutation(in.Marshal())
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.HasTTL || out.HasReason {
		t.Fatalf("expected no optional fields set, got %+v", out)
	}
	if out.Op != in.Op || out.Kind != in.Kind || out.Key != in.Key {
		t.Fatalf("roundtrip mismatch: got %+v want %+v", out, in)
	}
}

func TestUnmarshalEnvelopeRejectsTruncatedData(t *testing.T) {
	full := (&Envelope{Type: RepBL, Payload: []byte("x")}).Marshal()
	if _, err := UnmarshalEnvelope(full[:len(full)-1]); err == nil {
		t.Fatal("expected error on truncated envelope")
	}
}
