package tw

// windowRing holds num_windows buckets of window_size seconds each for one
// field on one key, "Window ring". Bucket index at time t is
// floor(t/window_size) mod num_windows.
type windowRing struct {
	fieldType FieldType
	windowSize int64
	numWindows int
	buckets []bucket
	// bucketEpoch[i] is the window index (t/windowSize, not yet modded) the
	// current contents of buckets[i] belong to. A bucket whose epoch is
	// stale (older than the retention horizon) reads as zero without being
	// explicitly cleared until the next write touches it.
	bucketEpoch []int64
}

func newWindowRing(ft FieldType, windowSize int64, numWindows int) *windowRing {
	r := &windowRing{
		fieldType: ft,
		windowSize: windowSize,
		numWindows: numWindows,
		buckets: make([]bucket, numWindows),
		bucketEpoch: make([]int64, numWindows),
	}
	for i := range r.buckets {
		r.buckets[i] = newBucket(ft)
		r.bucketEpoch[i] = -1
	}
	return r
}

func (r *windowRing) epochAt(now int64) int64 { return now / r.windowSize }

func (r *windowRing) indexFor(epoch int64) int {
	idx := epoch % int64(r.numWindows)
	if idx < 0 {
		idx += int64(r.numWindows)
	}
	return int(idx)
}

// ensureFresh lazily resets a bucket if its epoch has rotated out of the
// ring since it was last touched, so a read never observes stale data from
// a previous lap.
func (r *windowRing) ensureFresh(idx int, epoch int64) {
	if r.bucketEpoch[idx] != epoch {
		r.buckets[idx].reset()
		r.bucketEpoch[idx] = epoch
	}
}

// write applies fn to the bucket at bucketOffset windows before now's
// current bucket. offset 0 = current, 1 = previous, etc. Returns false if
// the offset is negative, out of range, or older than the retention
// horizon (num_windows*window_size), a silent drop.
func (r *windowRing) write(now int64, bucketOffset int, fn func(bucket) bool) bool {
	if bucketOffset < 0 || bucketOffset >= r.numWindows {
		return false
	}
	curEpoch := r.epochAt(now)
	targetEpoch := curEpoch - int64(bucketOffset)
	idx := r.indexFor(targetEpoch)
	r.ensureFresh(idx, targetEpoch)
	return fn(r.buckets[idx])
}

// currentBucket returns the (possibly freshly-reset) bucket for now,
// creating it implicitly if needed.
func (r *windowRing) currentBucket(now int64) bucket {
	epoch := r.epochAt(now)
	idx := r.indexFor(epoch)
	r.ensureFresh(idx, epoch)
	return r.buckets[idx]
}

// aggregate merges every non-expired bucket (epoch within the retention
// horizon of now) into a freshly zeroed accumulator and returns it.
func (r *windowRing) aggregate(now int64) bucket {
	acc := newBucket(r.fieldType)
	curEpoch := r.epochAt(now)
	minEpoch := curEpoch - int64(r.numWindows) + 1
	for i, epoch := range r.bucketEpoch {
		if epoch < minEpoch || epoch > curEpoch {
			continue
		}
		r.buckets[i].mergeInto(acc)
	}
	return acc
}

// perWindowValues returns one int projection per window, newest first,
// skipping types without an int projection by returning ok=false.
func (r *windowRing) perWindowValues(now int64, aux string) ([]int64, bool) {
	curEpoch := r.epochAt(now)
	minEpoch := curEpoch - int64(r.numWindows) + 1
	out := make([]int64, 0, r.numWindows)
	for e := curEpoch; e >= minEpoch; e-- {
		idx := r.indexFor(e)
		if r.bucketEpoch[idx] != e {
			out = append(out, 0)
			continue
		}
		v, ok := r.buckets[idx].intValue(aux)
		if !ok {
			return nil, false
		}
		out = append(out, v)
	}
	return out, true
}

func (r *windowRing) resetAll() {
	for i, b := range r.buckets {
		b.reset()
		r.bucketEpoch[i] = -1
	}
}
