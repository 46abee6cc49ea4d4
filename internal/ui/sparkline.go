package ui

import "strings"

// Sparkline keeps a ring of recent throughput samples and draws them as
// Unicode block characters, newest sample at the right edge.
type Sparkline struct {
	samples []float64
	head    int // next write position
	count   int
	max     float64
}

var sparkLevels = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

func NewSparkline(capacity int) *Sparkline {
	if capacity <= 0 {
		capacity = 60
	}
	return &Sparkline{samples: make([]float64, capacity)}
}

// Add records a sample. The running max sets the vertical scale; it is
// recomputed once per full ring so an old spike eventually stops squashing
// the chart.
func (s *Sparkline) Add(value float64) {
	s.samples[s.head] = value
	s.head = (s.head + 1) % len(s.samples)
	s.count++

	if value > s.max {
		s.max = value
	}
	if s.count%len(s.samples) == 0 {
		s.rescale()
	}
}

func (s *Sparkline) rescale() {
	s.max = 1
	for _, v := range s.samples {
		if v > s.max {
			s.max = v
		}
	}
}

// Render draws the most recent width samples. A width of zero or beyond
// capacity draws the whole ring. Slots with no sample yet render as spaces
// so the chart grows in from the right.
func (s *Sparkline) Render(width int) string {
	n := len(s.samples)
	if width <= 0 || width > n {
		width = n
	}

	have := s.count
	if have > n {
		have = n
	}

	var sb strings.Builder
	sb.Grow(width * 3)

	// Walk from the oldest visible slot to the newest. age 1 = most recent.
	for age := width; age >= 1; age-- {
		if age > have {
			sb.WriteRune(' ')
			continue
		}
		idx := ((s.head-age)%n + n) % n
		sb.WriteRune(s.level(s.samples[idx]))
	}
	return sb.String()
}

func (s *Sparkline) level(value float64) rune {
	if s.max <= 0 {
		return sparkLevels[0]
	}
	i := int(value / s.max * float64(len(sparkLevels)-1))
	if i < 0 {
		i = 0
	}
	if i >= len(sparkLevels) {
		i = len(sparkLevels) - 1
	}
	return sparkLevels[i]
}

// Clear wipes samples and scale; called on stage transitions.
func (s *Sparkline) Clear() {
	for i := range s.samples {
		s.samples[i] = 0
	}
	s.head = 0
	s.count = 0
	s.max = 0
}

// Count returns how many samples have been added.
func (s *Sparkline) Count() int {
	return s.count
}
