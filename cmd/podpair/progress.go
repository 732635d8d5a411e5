package main

import (
	"fmt"
	"sync/atomic"
	"time"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// ProgressPrinter displays a single-line countdown while the discovery
// window is open.
//
// Usage:
//
//	p := NewProgressPrinter(...)
//	p.Start()
//	defer p.Stop()
//
// The caller must call Stop to release resources and terminate the internal
// goroutine; failing to do so will leak a goroutine.
//
// A ProgressPrinter is single-use. Start may be called at most once, and Stop
// should be called exactly once. After Stop, the instance cannot be restarted.
type ProgressPrinter struct {
	prefix    string
	duration  time.Duration
	startTime time.Time
	ticker    atomic.Pointer[time.Ticker]
	stopChan  chan struct{}
	done      chan struct{} // closed when goroutine exits
	started   atomic.Bool   // ensures Start is called at most once
}

// NewProgressPrinter creates a printer counting down from duration.
func NewProgressPrinter(prefix string, duration time.Duration) *ProgressPrinter {
	return &ProgressPrinter{
		prefix:   prefix,
		duration: duration,
	}
}

// Start begins displaying countdown updates in a background goroutine.
// Panics if called more than once on the same ProgressPrinter instance.
func (p *ProgressPrinter) Start() {
	if !p.started.CompareAndSwap(false, true) {
		panic("ProgressPrinter.Start called more than once")
	}

	p.done = make(chan struct{})
	p.stopChan = make(chan struct{})
	p.startTime = time.Now()
	ticker := time.NewTicker(progressUpdateInterval)
	p.ticker.Store(ticker)

	fmt.Printf("\r%s (%ds)   ", p.prefix, int(p.duration.Seconds()+0.5))

	go func() {
		defer close(p.done)
		for {
			select {
			case <-p.stopChan:
				return
			case <-ticker.C:
				remaining := p.duration - time.Since(p.startTime)
				seconds := 0
				if remaining > 0 {
					// Round to the nearest second so 3.7s shows as 4s.
					seconds = int(remaining.Seconds() + 0.5)
				}
				fmt.Printf("\r%s (%ds)   ", p.prefix, seconds)
			}
		}
	}()
}

// Stop stops the countdown and clears the line.
// This function is safe to call multiple times and from multiple goroutines.
// Only the first call stops the ticker, waits for goroutine cleanup, and
// clears the progress line from the terminal.
func (p *ProgressPrinter) Stop() {
	ticker := p.ticker.Swap(nil)
	if ticker == nil {
		return // Already stopped or never started
	}

	ticker.Stop()
	close(p.stopChan)
	<-p.done

	fmt.Print(clearLineSequence)
}
