package core

import (
	"testing"
	"time"
)

func TestFrameStatsAverage(t *testing.T) {
	var s FrameStats
	if s.Average() != 0 || s.FPS() != 0 {
		t.Fatalf("empty stats should report zero")
	}

	s.Record(10 * time.Millisecond)
	s.Record(20 * time.Millisecond)
	if got := s.Average(); got != 15*time.Millisecond {
		t.Fatalf("average = %v, want 15ms", got)
	}
}

func TestFrameStatsRollingWindow(t *testing.T) {
	var s FrameStats
	for i := 0; i < frameSampleCount; i++ {
		s.Record(100 * time.Millisecond)
	}
	// Push the old samples out.
	for i := 0; i < frameSampleCount; i++ {
		s.Record(10 * time.Millisecond)
	}
	if got := s.Average(); got != 10*time.Millisecond {
		t.Fatalf("average = %v, want 10ms after window rollover", got)
	}
	if fps := s.FPS(); fps < 99 || fps > 101 {
		t.Fatalf("fps = %v, want ~100", fps)
	}
}
