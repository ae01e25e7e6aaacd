package replpb

import "google.golang.org/protobuf/encoding/protowire"

// TWMutation is the wire sub-message for one TW mutation, including explicit
// presence flags for the optional fields.
type TWMutation struct {
	DBName string
	Op string // NONE|RESET|RESET_FIELD|ADD|SUB
	Key string
	FieldName string
	HasFieldName bool
	StrParam string
	HasStrParam bool
	IntParam int64
	HasIntParam bool
}

const (
	twFieldDBName = 1
	twFieldOp = 2
	twFieldKey = 3
	twFieldField = 4
	twFieldStrParam = 5
	twFieldIntParam = 6
)

func (m *TWMutation) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, twFieldDBName, protowire.BytesType)
	b = protowire.AppendString(b, m.DBName)
	b = protowire.AppendTag(b, twFieldOp, protowire.BytesType)
	b = protowire.AppendString(b, m.Op)
	b = protowire.AppendTag(b, twFieldKey, protowire.BytesType)
	b = protowire.AppendString(b, m.Key)
	if m.HasFieldName {
		b = protowire.AppendTag(b, twFieldField, protowire.BytesType)
		b = protowire.AppendString(b, m.FieldName)
	}
	if m.HasStrParam {
		b = protowire.AppendTag(b, twFieldStrParam, protowire.BytesType)
		b = protowire.AppendString(b, m.StrParam)
	}
	if m.HasIntParam {
		b = protowire.AppendTag(b, twFieldIntParam, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.IntParam))
	}
	return b
}

func UnmarshalTWMutation(data []byte) (*TWMutation, error) {
	m := &TWMutation{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		data = data[n:]
		switch num {
		case twFieldDBName:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			m.DBName = v
			data = data[n:]
		case twFieldOp:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			m.Op = v
			data = data[n:]
		case twFieldKey:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			m.Key = v
			data = data[n:]
		case twFieldField:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			m.FieldName, m.HasFieldName = v, true
			data = data[n:]
		case twFieldStrParam:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			m.StrParam, m.HasStrParam = v, true
			data = data[n:]
		case twFieldIntParam:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			m.IntParam, m.HasIntParam = int64(v), true
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
