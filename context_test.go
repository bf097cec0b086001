package vkm

import "testing"

func TestFirstSetBit(t *testing.T) {
	cases := []struct {
		mask    uint32
		want    uint32
		wantOk  bool
	}{
		{0, 0, false},
		{1, 0, true},
		{0b1000, 3, true},
		{0b1010, 1, true},
	}
	for _, c := range cases {
		got, ok := firstSetBit(c.mask)
		if ok != c.wantOk || (ok && got != c.want) {
			t.Errorf("firstSetBit(%b) = (%d, %v), want (%d, %v)", c.mask, got, ok, c.want, c.wantOk)
		}
	}
}

func TestFrameContextRoundRobinAdvances(t *testing.T) {
	fc := &FrameContext{frames: []*frameSlot{{}, {}, {}}}

	for i := 0; i < 5; i++ {
		want := i % 3
		if fc.frameID != want {
			t.Fatalf("iteration %d: frameID = %d, want %d", i, fc.frameID, want)
		}
		if err := fc.End(); err != nil {
			t.Fatalf("End() error = %v", err)
		}
	}
}

func TestFrameContextEndRejectsUnmatchedCommandBuffer(t *testing.T) {
	fc := &FrameContext{frames: []*frameSlot{{acquired: 1, submitted: 0}}}
	if err := fc.End(); err == nil {
		t.Fatalf("expected error when a command buffer was begun but never ended")
	}
}

func TestFrameContextQueueDestroyerTargetsCurrentFrameOnly(t *testing.T) {
	fc := &FrameContext{frames: []*frameSlot{{}, {}}}

	ran := false
	fc.QueueDestroyer(func() { ran = true })
	if len(fc.frames[0].pendingDestroyers) != 1 {
		t.Fatalf("destroyer not queued against frame 0")
	}
	if len(fc.frames[1].pendingDestroyers) != 0 {
		t.Fatalf("destroyer leaked into frame 1")
	}

	if err := fc.End(); err != nil {
		t.Fatalf("End() error = %v", err)
	}
	fc.QueueDestroyer(func() {})
	if len(fc.frames[1].pendingDestroyers) != 1 {
		t.Fatalf("second destroyer not queued against the now-current frame 1")
	}

	fc.frames[0].pendingDestroyers[0]()
	if !ran {
		t.Fatalf("stored destroyer closure did not run")
	}
}
