package ui

import (
	"sync"
	"time"
)

// speedWindow tracks indexing throughput between Update calls. Samples are
// taken at most twice a second so bursty batch completions do not show up
// as noise.
type speedWindow struct {
	lastValue int
	lastAt    time.Time
	current   float64
	avg       float64
	peak      float64
	samples   int
	spark     *Sparkline
}

const speedSampleInterval = 500 * time.Millisecond

func (w *speedWindow) reset(now time.Time) {
	w.lastValue = 0
	w.lastAt = now
	w.current = 0
	w.avg = 0
	w.peak = 0
	w.samples = 0
	w.spark.Clear()
}

func (w *speedWindow) observe(now time.Time, value int) {
	elapsed := now.Sub(w.lastAt)
	if elapsed < speedSampleInterval {
		return
	}

	if delta := value - w.lastValue; delta > 0 {
		speed := float64(delta) / elapsed.Seconds()
		w.current = speed

		w.samples++
		if w.samples == 1 {
			w.avg = speed
		} else {
			// Exponential smoothing; 0.2 keeps the average responsive
			// without tracking every batch hiccup.
			w.avg = 0.2*speed + 0.8*w.avg
		}
		if speed > w.peak {
			w.peak = speed
		}
		w.spark.Add(speed)
	}

	w.lastValue = value
	w.lastAt = now
}

// ProgressTracker is the shared state behind the plain and TTY renderers.
// The pipeline goroutine writes, the render loop reads; all methods lock.
type ProgressTracker struct {
	mu          sync.RWMutex
	stage       Stage
	current     int
	total       int
	currentFile string
	startTime   time.Time
	stageStart  time.Time
	errors      []ErrorEvent
	warnings    []ErrorEvent

	lastETA time.Duration
	speed   speedWindow
}

// SpeedStats is a snapshot of throughput metrics in items per second.
type SpeedStats struct {
	Current float64
	Avg     float64
	Peak    float64
}

// ProgressStats is a point-in-time copy of tracker state for rendering.
type ProgressStats struct {
	Stage       Stage
	Current     int
	Total       int
	Progress    float64
	ETA         time.Duration
	CurrentFile string
	ErrorCount  int
	WarnCount   int
	Speed       SpeedStats
}

func NewProgressTracker() *ProgressTracker {
	now := time.Now()
	return &ProgressTracker{
		stage:      StageScanning,
		startTime:  now,
		stageStart: now,
		speed: speedWindow{
			lastAt: now,
			spark:  NewSparkline(60),
		},
	}
}

// SetStage transitions to a new stage and resets per-stage counters,
// throughput history and ETA smoothing.
func (p *ProgressTracker) SetStage(stage Stage, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stage = stage
	p.total = total
	p.current = 0
	p.currentFile = ""
	p.stageStart = time.Now()
	p.lastETA = 0
	p.speed.reset(p.stageStart)
}

// Update advances progress within the current stage.
func (p *ProgressTracker) Update(current int, file string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = current
	if file != "" {
		p.currentFile = file
	}
	p.speed.observe(time.Now(), current)
}

// AddError records a per-file error or warning for the summary panel.
func (p *ProgressTracker) AddError(event ErrorEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if event.IsWarn {
		p.warnings = append(p.warnings, event)
	} else {
		p.errors = append(p.errors, event)
	}
}

// Progress returns stage completion in the range 0.0 to 1.0.
func (p *ProgressTracker) Progress() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return clampProgress(p.current, p.total)
}

// ETA estimates remaining stage time. Write lock: the smoothing state
// updates on every read.
func (p *ProgressTracker) ETA() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.calculateETA()
}

// Elapsed returns time since the tracker was created.
func (p *ProgressTracker) Elapsed() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return time.Since(p.startTime)
}

// Stats returns a snapshot for rendering. Write lock, same reason as ETA.
func (p *ProgressTracker) Stats() ProgressStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return ProgressStats{
		Stage:       p.stage,
		Current:     p.current,
		Total:       p.total,
		Progress:    clampProgress(p.current, p.total),
		ETA:         p.calculateETA(),
		CurrentFile: p.currentFile,
		ErrorCount:  len(p.errors),
		WarnCount:   len(p.warnings),
		Speed: SpeedStats{
			Current: p.speed.current,
			Avg:     p.speed.avg,
			Peak:    p.speed.peak,
		},
	}
}

func clampProgress(current, total int) float64 {
	if total == 0 {
		return 0.0
	}
	progress := float64(current) / float64(total)
	if progress > 1.0 {
		return 1.0
	}
	return progress
}

// etaSmoothingFactor weights new estimates against the previous one so the
// displayed ETA does not jump around with batch-to-batch variance.
const etaSmoothingFactor = 0.3

// calculateETA must be called with the lock held; it updates lastETA.
func (p *ProgressTracker) calculateETA() time.Duration {
	if p.current == 0 || p.total == 0 {
		return 0
	}

	elapsed := time.Since(p.stageStart)
	progress := float64(p.current) / float64(p.total)
	if progress <= 0 || progress >= 1.0 {
		return 0
	}

	remaining := time.Duration(float64(elapsed)/progress) - elapsed
	if remaining < 0 {
		return 0
	}

	if p.lastETA == 0 {
		p.lastETA = remaining
		return remaining
	}

	smoothed := time.Duration(
		etaSmoothingFactor*float64(remaining) +
			(1-etaSmoothingFactor)*float64(p.lastETA),
	)
	p.lastETA = smoothed
	return smoothed
}

// Errors returns a copy of recorded errors.
func (p *ProgressTracker) Errors() []ErrorEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]ErrorEvent, len(p.errors))
	copy(out, p.errors)
	return out
}

// Warnings returns a copy of recorded warnings.
func (p *ProgressTracker) Warnings() []ErrorEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]ErrorEvent, len(p.warnings))
	copy(out, p.warnings)
	return out
}

// RenderSparkline draws the throughput history at the given width.
func (p *ProgressTracker) RenderSparkline(width int) string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.speed.spark.Render(width)
}

// SpeedStats returns current throughput metrics.
func (p *ProgressTracker) SpeedStats() SpeedStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return SpeedStats{
		Current: p.speed.current,
		Avg:     p.speed.avg,
		Peak:    p.speed.peak,
	}
}
