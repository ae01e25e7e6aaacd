package tw

import "github.com/spaolacci/murmur3"

// countMinBucket is a hand-rolled count-min sketch for approximate
// heavy-hitter frequency queries backing the "countmin" field type. No
// available dependency implements a mergeable count-min sketch, so it is
// built directly here; murmur3 itself is reused from the shard-hashing
// dependency rather than hand-rolled.
const (
	countMinDepth = 4
	countMinWidth = 1024
)

type countMinBucket struct {
	counts [countMinDepth][countMinWidth]uint32
}

func newCountMinBucket() *countMinBucket { return &countMinBucket{} }

func (b *countMinBucket) rowIndex(row int, s string) uint32 {
	h := murmur3.Sum32WithSeed([]byte(s), uint32(row)*0x9e3779b9+1)
	return h % countMinWidth
}

func (b *countMinBucket) accept(v Variant) bool {
	if v.Kind != KindString {
		return false
	}
	for row := 0; row < countMinDepth; row++ {
		idx := b.rowIndex(row, v.Str)
		b.counts[row][idx]++
	}
	return true
}

func (b *countMinBucket) sub(Variant) bool { return false }

func (b *countMinBucket) mergeInto(acc bucket) {
	a := acc.(*countMinBucket)
	for r := 0; r < countMinDepth; r++ {
		for c := 0; c < countMinWidth; c++ {
			a.counts[r][c] += b.counts[r][c]
		}
	}
}

// intValue returns the estimated count for the item named by aux (the
// count-min point query: the minimum of the depth counters it hashes to).
func (b *countMinBucket) intValue(aux string) (int64, bool) {
	if aux == "" {
		return 0, true
	}
	min := uint32(0)
	for row := 0; row < countMinDepth; row++ {
		idx := b.rowIndex(row, aux)
		c := b.counts[row][idx]
		if row == 0 || c < min {
			min = c
		}
	}
	return int64(min), true
}

func (b *countMinBucket) reset() {
	for r := range b.counts {
		for c := range b.counts[r] {
			b.counts[r][c] = 0
		}
	}
}

func (b *countMinBucket) clone() bucket { return &countMinBucket{} }
