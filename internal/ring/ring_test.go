package ring

import "testing"

func TestNewRejectsBadCapacity(t *testing.T) {
	cases := []int{0, 1, 3, 1000, 1023}
	for _, c := range cases {
		if _, err := New[int16](c); err == nil {
			t.Errorf("New(%d) = nil error, want error", c)
		}
	}
	if _, err := New[int16](1024); err != nil {
		t.Errorf("New(1024) = %v, want nil", err)
	}
}

func TestPushPopRoundTrip(t *testing.T) {
	r, err := New[int16](1024)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	src := make([]int16, 100)
	for i := range src {
		src[i] = int16(i)
	}
	if !r.Push(src) {
		t.Fatalf("Push dropped an block that fit")
	}
	if got := r.ConsumerAvailable(); got != 100 {
		t.Errorf("ConsumerAvailable() = %d, want 100", got)
	}

	dst := make([]int16, 100)
	n := r.Pop(dst)
	if n != 100 {
		t.Fatalf("Pop() = %d, want 100", n)
	}
	for i := range src {
		if dst[i] != src[i] {
			t.Fatalf("dst[%d] = %d, want %d", i, dst[i], src[i])
		}
	}
	if got := r.ConsumerAvailable(); got != 0 {
		t.Errorf("ConsumerAvailable() after drain = %d, want 0", got)
	}
}

func TestPushWholeBlockDropOnOverflow(t *testing.T) {
	r, err := New[int16](1024)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	full := make([]int16, 1024)
	if !r.Push(full) {
		t.Fatalf("Push(full) should succeed exactly at capacity")
	}
	extra := make([]int16, 10)
	if r.Push(extra) {
		t.Fatalf("Push(extra) should be rejected when ring is full")
	}
	if got := r.LoadDropped(); got != 10 {
		t.Errorf("LoadDropped() = %d, want 10", got)
	}
	// Partial writes are forbidden: a block larger than remaining space
	// must be dropped whole, not partially admitted.
	if got := r.ConsumerAvailable(); got != 1024 {
		t.Errorf("ConsumerAvailable() = %d, want 1024 (unchanged)", got)
	}
}

func TestWrapAroundCopy(t *testing.T) {
	r, err := New[int16](1024)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// Push and pop repeatedly in chunks that don't divide the capacity,
	// forcing the write/read indices to cross the buffer boundary many
	// times, and verify every sample survives in order.
	const chunk = 300
	const rounds = 10
	var nextWant int16
	for round := 0; round < rounds; round++ {
		src := make([]int16, chunk)
		for i := range src {
			src[i] = nextWant + int16(i)
		}
		if !r.Push(src) {
			t.Fatalf("round %d: Push unexpectedly dropped", round)
		}
		dst := make([]int16, chunk)
		if n := r.Pop(dst); n != chunk {
			t.Fatalf("round %d: Pop() = %d, want %d", round, n, chunk)
		}
		for i, v := range dst {
			want := nextWant + int16(i)
			if v != want {
				t.Fatalf("round %d: dst[%d] = %d, want %d", round, i, v, want)
			}
		}
		nextWant += chunk
	}
}

func TestFillInvariantAcrossCounterWrap(t *testing.T) {
	r, err := New[int16](1024)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// Force both counters near the uint32 wrap boundary and confirm the
	// fill computation (unsigned wrapping subtraction) still holds.
	const nearWrap = ^uint32(0) - 500
	r.write.Store(nearWrap)
	r.read.Store(nearWrap)

	src := make([]int16, 600)
	if !r.Push(src) {
		t.Fatalf("Push near wrap boundary unexpectedly dropped")
	}
	if got := r.ConsumerAvailable(); got != 600 {
		t.Errorf("ConsumerAvailable() across wrap = %d, want 600", got)
	}
	dst := make([]int16, 600)
	if n := r.Pop(dst); n != 600 {
		t.Fatalf("Pop() across wrap = %d, want 600", n)
	}
	if got := r.ConsumerAvailable(); got != 0 {
		t.Errorf("ConsumerAvailable() post-drain across wrap = %d, want 0", got)
	}
}

func TestReadableNotifyOnEmptyToNonEmpty(t *testing.T) {
	r, err := New[int16](1024)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	select {
	case <-r.Readable():
		t.Fatalf("Readable() fired before any push")
	default:
	}

	r.Push([]int16{1, 2, 3})
	select {
	case <-r.Readable():
	default:
		t.Fatalf("Readable() did not fire on empty->non-empty transition")
	}

	// A second push while already non-empty must not produce a second
	// pending notification (edge-coalesced).
	r.Push([]int16{4, 5, 6})
	select {
	case <-r.Readable():
		t.Fatalf("Readable() fired again without an intervening empty state")
	default:
	}
}

func TestAdvanceReadToForCatchUp(t *testing.T) {
	r, err := New[int16](1024)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	src := make([]int16, 1000)
	r.Push(src)
	write := r.LoadWrite()
	target := write - 200
	r.AdvanceReadTo(target)
	if got := r.ConsumerAvailable(); got != 200 {
		t.Errorf("ConsumerAvailable() after AdvanceReadTo = %d, want 200", got)
	}
}

func TestFloat32Ring(t *testing.T) {
	r, err := New[float32](1024)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	src := []float32{0.1, -0.2, 0.3, -0.4}
	r.Push(src)
	dst := make([]float32, len(src))
	r.Pop(dst)
	for i := range src {
		if dst[i] != src[i] {
			t.Errorf("dst[%d] = %v, want %v", i, dst[i], src[i])
		}
	}
}
