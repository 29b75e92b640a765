package diag

import "testing"

func TestCounters_SnapshotReflectsIncrements(t *testing.T) {
	c := New()
	c.SigMismatch.Add(1)
	c.SigMismatch.Add(1)
	c.SeqRegressions.Add(1)
	c.SetLatG(0.73)

	snap := c.Snapshot()
	if snap.SigMismatch != 2 {
		t.Errorf("expected SigMismatch=2, got %d", snap.SigMismatch)
	}
	if snap.SeqRegressions != 1 {
		t.Errorf("expected SeqRegressions=1, got %d", snap.SeqRegressions)
	}
	if snap.LatG != 0.73 {
		t.Errorf("expected LatG=0.73, got %v", snap.LatG)
	}
}

func TestCounters_LatGDefaultsZero(t *testing.T) {
	c := New()
	if c.LatG() != 0 {
		t.Errorf("expected default LatG 0, got %v", c.LatG())
	}
}
