package rtpmedia

import "testing"

func TestSequenceTrackerFirstPacket(t *testing.T) {
	st := NewSequenceTracker()
	ext, lost := st.Update(100)
	if ext != 100 || lost != 0 {
		t.Fatalf("ext=%d lost=%d, want 100,0", ext, lost)
	}
}

func TestSequenceTrackerDetectsLoss(t *testing.T) {
	st := NewSequenceTracker()
	st.Update(10)
	_, lost := st.Update(13)
	if lost != 2 {
		t.Fatalf("lost = %d, want 2", lost)
	}
	_, total := st.Stats()
	if total != 2 {
		t.Fatalf("cumulative lost = %d, want 2", total)
	}
}

func TestSequenceTrackerWrapsWithoutGap(t *testing.T) {
	st := NewSequenceTracker()
	st.Update(65534)
	st.Update(65535)
	ext, lost := st.Update(0)
	if lost != 0 {
		t.Fatalf("lost = %d at wrap, want 0", lost)
	}
	if ext != 1<<16 {
		t.Fatalf("extended seq = %d, want %d (cycle incremented)", ext, 1<<16)
	}
	ext2, _ := st.Update(1)
	if ext2 != 1<<16|1 {
		t.Fatalf("extended seq after wrap = %d, want %d", ext2, 1<<16|1)
	}
}
