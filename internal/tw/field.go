package tw

// FieldType is the name of a field's statistic kind, matching closed
// set {int, hll, countmin, distinct_strings, max}.
type FieldType string

const (
	FieldInt FieldType = "int"
	FieldHLL FieldType = "hll"
	FieldCountMin FieldType = "countmin"
	FieldDistinctStrings FieldType = "distinct_strings"
	FieldMax FieldType = "max"
)

// bucket is the per-type implementation of one window slot. Concrete types
// implement accept/merge/reset field-type polymorphism design
// note; the ring stores one bucket value per window.
type bucket interface {
	// accept ingests a Variant into this bucket. Returns false if the value
	// variant does not match the field's accepted type (silent drop).
	accept(v Variant) bool
	// sub subtracts an additive value, clamped at zero. No-op for
	// non-additive types.
	sub(v Variant) bool
	// mergeInto merges this bucket's value into an accumulator of the same
	// concrete type (used for "sum"/"union"/"max" across windows).
	mergeInto(acc bucket)
	// intValue projects this bucket to an int64 if the type supports one;
	// the second return is false for types with no int projection
	// (get_all_fields skips those).
	intValue(aux string) (int64, bool)
	// reset zeros the bucket in place.
	reset()
	// clone returns a fresh zero-value bucket of the same concrete type.
	clone() bucket
}

// newBucket constructs a zero-value bucket for the given field type.
func newBucket(ft FieldType) bucket {
	switch ft {
	case FieldInt:
		return &intBucket{}
	case FieldMax:
		return &maxBucket{}
	case FieldHLL:
		return newHLLBucket()
	case FieldCountMin:
		return newCountMinBucket()
	case FieldDistinctStrings:
		return newDistinctBucket()
	default:
		return nil
	}
}
