/*
Copyright (c) 2025 Mike Lane

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all
copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
*/

package cleanup

import (
	"context"
	"time"

	"sigs.k8s.io/controller-runtime/pkg/log"
)

// Sweeper evicts stale entries from an in-memory cache and reports how many
// were removed.
type Sweeper interface {
	Sweep(now time.Time) int
}

// Target names a Sweeper so its evictions can be told apart in logs.
type Target struct {
	Name    string
	Sweeper Sweeper
}

// Scheduler periodically sweeps the process-local caches that would otherwise
// grow without bound: per-repository rate limiters and cached installation
// transports.
type Scheduler struct {
	targets  []Target
	interval time.Duration
	now      func() time.Time
}

// NewScheduler creates a scheduler that sweeps every target once per interval.
func NewScheduler(interval time.Duration, targets ...Target) *Scheduler {
	return &Scheduler{
		targets:  targets,
		interval: interval,
		now:      time.Now,
	}
}

// Start runs sweeps until the context is canceled. It always returns nil on
// cancellation so it can run under an errgroup next to the HTTP server.
func (s *Scheduler) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.cleanup(ctx)
		}
	}
}

// cleanup performs a single pass over every target and returns the total
// number of evicted entries.
func (s *Scheduler) cleanup(ctx context.Context) int {
	logger := log.FromContext(ctx)
	now := s.now()

	total := 0
	for _, target := range s.targets {
		if target.Sweeper == nil {
			continue
		}
		removed := target.Sweeper.Sweep(now)
		if removed > 0 {
			logger.V(1).Info("Swept stale entries", "target", target.Name, "removed", removed)
		}
		total += removed
	}
	return total
}
