package container

import "testing"

func TestSampleTableTargetAndKeyframe(t *testing.T) {
	var table SampleTable
	table.Append(
		Sample{CTSUs: 0, IsKeyframe: true},
		Sample{CTSUs: 33_000},
		Sample{CTSUs: 66_000},
		Sample{CTSUs: 99_000, IsKeyframe: true},
		Sample{CTSUs: 132_000},
	)

	if got := table.TargetSample(70_000); got != 3 {
		t.Fatalf("TargetSample(70000) = %d, want 3", got)
	}
	if got := table.TargetSample(0); got != 0 {
		t.Fatalf("TargetSample(0) = %d, want 0", got)
	}
	if got := table.TargetSample(1_000_000); got != -1 {
		t.Fatalf("TargetSample(huge) = %d, want -1", got)
	}

	if got := table.KeyframeAtOrBefore(2); got != 0 {
		t.Fatalf("KeyframeAtOrBefore(2) = %d, want 0", got)
	}
	if got := table.KeyframeAtOrBefore(3); got != 3 {
		t.Fatalf("KeyframeAtOrBefore(3) = %d, want 3", got)
	}
	if got := table.KeyframeAtOrBefore(4); got != 3 {
		t.Fatalf("KeyframeAtOrBefore(4) = %d, want 3", got)
	}
	if got := table.LastKeyframe(); got != 3 {
		t.Fatalf("LastKeyframe() = %d, want 3", got)
	}
}

func TestRescaleToMicros(t *testing.T) {
	cases := []struct {
		cts       int64
		timescale uint32
		want      int64
	}{
		{0, 30000, 0},
		{30000, 30000, 1_000_000},
		{15000, 30000, 500_000},
		{1, 3, 333333},
		{2, 3, 666667},
	}
	for _, c := range cases {
		if got := rescaleToMicros(c.cts, c.timescale); got != c.want {
			t.Errorf("rescaleToMicros(%d, %d) = %d, want %d", c.cts, c.timescale, got, c.want)
		}
	}
}
