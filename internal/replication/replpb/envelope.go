// Package replpb hand-encodes the replication envelope and mutation
// messages using the protobuf wire format directly (via
// google.golang.org/protobuf/encoding/protowire) rather than a
// protoc-generated struct, since no .proto compiler step runs here. Field
// numbers below are the message's stable wire contract.
package replpb

import (
	"google.golang.org/protobuf/encoding/protowire"
)

// RepType is the outer envelope's type tag.
type RepType int32

const (
	RepNone RepType = 0
	RepTW RepType = 1
	RepBL RepType = 2
	RepWL RepType = 3
)

// Envelope is the outer frame: {type, payload bytes}.
type Envelope struct {
	Type RepType
	Payload []byte
}

const (
	envFieldType = 1
	envFieldPayload = 2
)

func (e *Envelope) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, envFieldType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.Type))
	b = protowire.AppendTag(b, envFieldPayload, protowire.BytesType)
	b = protowire.AppendBytes(b, e.Payload)
	return b
}

func UnmarshalEnvelope(data []byte) (*Envelope, error) {
	e := &Envelope{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		data = data[n:]
		switch num {
		case envFieldType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			e.Type = RepType(v)
			data = data[n:]
		case envFieldPayload:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			e.Payload = append([]byte(nil), v...)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return e, nil
}
