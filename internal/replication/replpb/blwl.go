package replpb

import "google.golang.org/protobuf/encoding/protowire"

// BLWLMutation is the wire sub-message for one BL/WL mutation.
type BLWLMutation struct {
	Op string // NONE|ADD|DELETE
	Kind string // ip|login|ip_login
	Key string
	TTL int64
	HasTTL bool
	Reason string
	HasReason bool
}

const (
	blwlFieldOp = 1
	blwlFieldKind = 2
	blwlFieldKey = 3
	blwlFieldTTL = 4
	blwlFieldReason = 5
)

func (m *BLWLMutation) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, blwlFieldOp, protowire.BytesType)
	b = protowire.AppendString(b, m.Op)
	b = protowire.AppendTag(b, blwlFieldKind, protowire.BytesType)
	b = protowire.AppendString(b, m.Kind)
	b = protowire.AppendTag(b, blwlFieldKey, protowire.BytesType)
	b = protowire.AppendString(b, m.Key)
	if m.HasTTL {
		b = protowire.AppendTag(b, blwlFieldTTL, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.TTL))
	}
	if m.HasReason {
		b = protowire.AppendTag(b, blwlFieldReason, protowire.BytesType)
		b = protowire.AppendString(b, m.Reason)
	}
	return b
}

func UnmarshalBLWLMutation(data []byte) (*BLWLMutation, error) {
	m := &BLWLMutation{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		data = data[n:]
		switch num {
		case blwlFieldOp:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			m.Op = v
			data = data[n:]
		case blwlFieldKind:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			m.Kind = v
			data = data[n:]
		case blwlFieldKey:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			m.Key = v
			data = data[n:]
		case blwlFieldTTL:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			m.TTL, m.HasTTL = int64(v), true
			data = data[n:]
		case blwlFieldReason:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			m.Reason, m.HasReason = v, true
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return m, nil
}
