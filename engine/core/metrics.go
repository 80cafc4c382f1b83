package core

import "time"

const frameSampleCount = 30

// FrameStats keeps a rolling average of frame times for pacing diagnostics.
type FrameStats struct {
	samples [frameSampleCount]time.Duration
	cursor  int
	filled  int
	total   time.Duration
}

// Record adds one frame's duration to the rolling window.
func (s *FrameStats) Record(frameTime time.Duration) {
	s.total -= s.samples[s.cursor]
	s.samples[s.cursor] = frameTime
	s.total += frameTime
	s.cursor = (s.cursor + 1) % frameSampleCount
	if s.filled < frameSampleCount {
		s.filled++
	}
}

// Average returns the mean frame time over the window.
func (s *FrameStats) Average() time.Duration {
	if s.filled == 0 {
		return 0
	}
	return s.total / time.Duration(s.filled)
}

// FPS returns the frame rate implied by the average frame time.
func (s *FrameStats) FPS() float64 {
	avg := s.Average()
	if avg <= 0 {
		return 0
	}
	return float64(time.Second) / float64(avg)
}
