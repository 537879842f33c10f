// Package retention runs the background loop that retires partitions whose
// entire range has fallen past the retention horizon.
package retention

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// Retirer is the engine surface the daemon drives. RetireEligible archives
// and removes every partition fully past the horizon and returns their IDs.
type Retirer interface {
	RetireEligible(ctx context.Context) ([]string, error)
}

// Daemon periodically retires expired partitions.
type Daemon struct {
	retirer       Retirer
	checkInterval time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewDaemon creates a retention daemon.
func NewDaemon(retirer Retirer, checkInterval time.Duration) *Daemon {
	if checkInterval <= 0 {
		checkInterval = time.Hour
	}
	return &Daemon{retirer: retirer, checkInterval: checkInterval}
}

// Start begins the retirement loop. It runs until the context is cancelled
// or Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("retention: daemon is already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.running = true
	d.done = make(chan struct{})
	d.mu.Unlock()

	go d.run(ctx)
	return nil
}

// Stop gracefully stops the daemon.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return nil
	}
	d.cancel()
	<-d.done
	d.running = false
	return nil
}

func (d *Daemon) run(ctx context.Context) {
	defer close(d.done)

	// Run immediately on start
	d.runOnce(ctx)

	ticker := time.NewTicker(d.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.runOnce(ctx)
		}
	}
}

func (d *Daemon) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	retired, err := d.retirer.RetireEligible(ctx)
	if err != nil {
		log.Printf("retention: retirement cycle failed: %v", err)
		return
	}
	if len(retired) > 0 {
		log.Printf("retention: retired %d partitions: %v", len(retired), retired)
	}
}
