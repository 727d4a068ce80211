package stats

import (
	"testing"
	"time"
)

func TestSnapshotComputesOverflowDelta(t *testing.T) {
	c := New()
	now := time.Unix(0, 0)
	s1 := c.Snapshot(now, 0.5, 100, 0, 0, 512*1024, 0)
	if s1.OverflowSamples != 100 {
		t.Errorf("first OverflowSamples = %d, want 100", s1.OverflowSamples)
	}
	s2 := c.Snapshot(now.Add(Interval), 0.5, 150, 0, 0, 512*1024, 0)
	if s2.OverflowSamples != 50 {
		t.Errorf("second OverflowSamples = %d, want 50 (delta)", s2.OverflowSamples)
	}
}

func TestSnapshotOverflowDeltaAcrossUint32Wrap(t *testing.T) {
	c := New()
	now := time.Unix(0, 0)
	c.Snapshot(now, 0, ^uint32(0)-10, 0, 0, 1, 0) // dropped = maxUint32 - 10
	s2 := c.Snapshot(now.Add(Interval), 0, 40, 0, 0, 1, 0)
	if s2.OverflowSamples != 51 {
		t.Errorf("overflow delta across wrap = %d, want 51", s2.OverflowSamples)
	}
}

func TestAvgSamplesPerWakeAndReset(t *testing.T) {
	c := New()
	c.RecordWake(100)
	c.RecordWake(200)
	if got := c.AvgSamplesPerWake(); got != 150 {
		t.Fatalf("AvgSamplesPerWake() = %v, want 150", got)
	}
	c.Snapshot(time.Unix(0, 0), 0, 0, 0, 0, 1, 0)
	if got := c.AvgSamplesPerWake(); got != 0 {
		t.Errorf("AvgSamplesPerWake() after Snapshot reset = %v, want 0", got)
	}
}

func TestWSPressurePercent(t *testing.T) {
	c := New()
	s := c.Snapshot(time.Unix(0, 0), 0, 0, 0, 256*1024, 512*1024, 0)
	if s.WSPressurePct != 50 {
		t.Errorf("WSPressurePct = %v, want 50", s.WSPressurePct)
	}
}

func TestTimelineCapped(t *testing.T) {
	c := New()
	now := time.Unix(0, 0)
	for i := 0; i < MaxTimeline+50; i++ {
		c.Snapshot(now.Add(time.Duration(i)*Interval), 0, uint32(i), 0, 0, 1, 0)
	}
	tl := c.Timeline()
	if len(tl) != MaxTimeline {
		t.Fatalf("len(Timeline()) = %d, want %d", len(tl), MaxTimeline)
	}
	// The oldest retained entry should be the 51st pushed (index 50).
	if want := now.Add(50 * Interval); !tl[0].Time.Equal(want) {
		t.Errorf("oldest retained Time = %v, want %v (index 50)", tl[0].Time, want)
	}
}

func TestRecordEncodeAveraging(t *testing.T) {
	c := New()
	c.RecordEncode(2 * time.Millisecond)
	c.RecordEncode(4 * time.Millisecond)
	s := c.Snapshot(time.Unix(0, 0), 0, 0, 0, 0, 1, 0)
	if s.FramesEncoded != 2 {
		t.Errorf("FramesEncoded = %d, want 2", s.FramesEncoded)
	}
	if s.AvgEncodeMs != 3 {
		t.Errorf("AvgEncodeMs = %v, want 3", s.AvgEncodeMs)
	}
}
