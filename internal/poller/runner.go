// internal/poller/runner.go
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/tamzrod/co2-poller/internal/driver"
)

// Run starts the ticker loop and emits one CycleResult per cycle on out.
// One goroutine per sensor. No overlap: a firing that lands while a cycle
// is still running (including delivery on out) is dropped and counted.
// Returns after ctx is done and the in-flight cycle has finished.
func (p *Poller) Run(ctx context.Context, out chan<- driver.CycleResult) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	fire := func() {
		if !p.busy.CompareAndSwap(false, true) {
			n := p.dropped.Add(1)
			glog.Warningf("%s: cycle still running, firing dropped (%d total)", p.cfg.ID, n)
			return
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer p.busy.Store(false)

			res := p.c.Poll(ctx)
			select {
			case out <- res:
			case <-ctx.Done():
			}
		}()
	}

	if p.cfg.Immediate {
		fire()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fire()
		}
	}
}
