package logger

import (
	"fmt"
	"sync"
	"time"
)

// ProgressTracker logs periodic progress of long-running operations such as
// loading a large payment file
type ProgressTracker struct {
	logger      Logger
	operation   string
	current     int64
	startTime   time.Time
	lastLogTime time.Time
	logInterval time.Duration
	mutex       sync.Mutex
}

// ProgressConfig configures progress tracking behavior
type ProgressConfig struct {
	Operation   string
	LogInterval time.Duration
	Logger      Logger
}

// NewProgressTracker creates a new progress tracker
func NewProgressTracker(config ProgressConfig) *ProgressTracker {
	if config.Logger == nil {
		config.Logger = GetGlobalLogger()
	}
	if config.LogInterval == 0 {
		config.LogInterval = 5 * time.Second
	}

	now := time.Now()
	tracker := &ProgressTracker{
		logger:      config.Logger.WithComponent("progress"),
		operation:   config.Operation,
		startTime:   now,
		lastLogTime: now,
		logInterval: config.LogInterval,
	}

	tracker.logger.WithField("operation", config.Operation).Debug("Starting operation")
	return tracker
}

// Increment increments the progress counter by 1
func (p *ProgressTracker) Increment() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.current++
	now := time.Now()
	if now.Sub(p.lastLogTime) >= p.logInterval {
		p.logger.WithFields(Fields{
			"operation": p.operation,
			"processed": p.current,
			"rate":      fmt.Sprintf("%.2f/sec", rate(p.current, now.Sub(p.startTime))),
		}).Info("Progress update")
		p.lastLogTime = now
	}
}

// Complete logs final statistics and returns the processed count
func (p *ProgressTracker) Complete() int64 {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	duration := time.Since(p.startTime)
	p.logger.WithFields(Fields{
		"operation": p.operation,
		"processed": p.current,
		"duration":  duration.String(),
		"rate":      fmt.Sprintf("%.2f/sec", rate(p.current, duration)),
	}).Debug("Operation completed")

	return p.current
}

func rate(count int64, elapsed time.Duration) float64 {
	if elapsed.Seconds() <= 0 {
		return 0
	}
	return float64(count) / elapsed.Seconds()
}

// TimedOperation executes fn, logs its outcome with timing information and
// returns the elapsed time together with fn's error
func TimedOperation(operation string, log Logger, fn func() error) (time.Duration, error) {
	if log == nil {
		log = GetGlobalLogger()
	}

	start := time.Now()
	err := fn()
	elapsed := time.Since(start)

	fields := Fields{
		"operation": operation,
		"duration":  elapsed.String(),
	}
	if err != nil {
		fields["status"] = "error"
		log.WithError(err).WithFields(fields).Error("Operation failed")
	} else {
		fields["status"] = "success"
		log.WithFields(fields).Debug("Operation completed")
	}

	return elapsed, err
}
