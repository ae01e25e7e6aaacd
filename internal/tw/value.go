package tw

import (
	"fmt"
	"net/netip"
)

// VariantKind tags the dynamic type carried by a Variant.
type VariantKind uint8

const (
	KindString VariantKind = iota
	KindInt
	KindAddress
)

// Variant is the tagged union accepted by TW store writes: a caller may pass
// a string, an integer, or a network address, and each field type decides
// which variants it accepts.
type Variant struct {
	Kind VariantKind
	Str string
	Int int64
	Addr netip.Addr
}

func StringVariant(s string) Variant { return Variant{Kind: KindString, Str: s} }
func IntVariant(i int64) Variant { return Variant{Kind: KindInt, Int: i} }
func AddrVariant(a netip.Addr) Variant { return Variant{Kind: KindAddress, Addr: a} }

func (v Variant) String() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindInt:
		return fmt.Sprintf("%d", v.Int)
	case KindAddress:
		return v.Addr.String()
	default:
		return ""
	}
}

// canonicalKey masks an address-kind key variant to a CIDR string using the
// configured prefix lengths, or returns the string/int variant unchanged.
// Keys derived from addresses are always stored as CIDR strings so that
// /24 (or /64) neighbors share one entry.
func canonicalKey(v Variant, v4Prefix, v6Prefix int) string {
	switch v.Kind {
	case KindAddress:
		prefix := v4Prefix
		if v.Addr.Is6() && !v.Addr.Is4In6() {
			prefix = v6Prefix
		}
		p, err := v.Addr.Prefix(prefix)
		if err != nil {
			return v.Addr.String()
		}
		return p.Masked().String()
	case KindInt:
		return fmt.Sprintf("%d", v.Int)
	default:
		return v.Str
	}
}
