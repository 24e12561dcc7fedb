package client

import (
	"sync"
	"time"
)

// Driver adapts Client.Step to one scheduling model (spec §5). Every
// model presents the identical contract: each client's data is touched by
// exactly one executor at a time, and the only suspension points are
// inside Step's adapter Wait/Recv/Send calls.
type Driver interface {
	// Run drives c to completion (DEAD), using whatever concurrency
	// model this driver implements. waitTimeout bounds each Wait call so
	// the driver can periodically notice external shutdown signals.
	Run(c *Client, waitTimeout time.Duration, stop <-chan struct{})
}

// GoroutineDriver is the default thread-per-client model: the caller
// spawns one goroutine per Client that loops Step until Dead. This is
// the Go analogue of the original's vthread_pthread.c.
type GoroutineDriver struct{}

func (GoroutineDriver) Run(c *Client, waitTimeout time.Duration, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			// let the request in flight finish; exit once nothing is pending
			if c.queueHead == nil && c.curReq == nil {
				c.state = StateExit
			}
		default:
		}
		if out := c.Step(waitTimeout); out == Dead {
			return
		}
	}
}

// SequentialDriver is the single-threaded cooperative model: a single
// goroutine advances every live client once per pass, yielding control
// back to the caller's loop between clients instead of blocking on any
// one socket. This is the analogue of a select-driven accept loop.
type SequentialDriver struct{}

// RunOnce advances every client in clients by exactly one Step, with a
// 1ms wait timeout so an idle client's Recv times out instead of stalling
// the pass. Returns the subset still alive.
func (SequentialDriver) RunOnce(clients []*Client) []*Client {
	alive := clients[:0]
	for _, c := range clients {
		if out := c.Step(time.Millisecond); out != Dead {
			alive = append(alive, c)
		}
	}
	return alive
}

// PoolDriver is the fixed worker-pool model: a bounded number of workers
// pull ready clients from a channel and advance them one Step at a time,
// re-queuing unless the client reached DEAD. This is the analogue of the
// original's threadpool.c / vthread_threadpool.c.
type PoolDriver struct {
	Workers int
}

// Run starts p.Workers goroutines consuming ready and re-queuing into
// ready themselves until stop closes or ready is closed. A client that
// reaches DEAD is dropped; Run does not return on its own once every
// client has died. The caller is responsible for seeding ready with the
// clients to drive.
func (p PoolDriver) Run(ready chan *Client, waitTimeout time.Duration, stop <-chan struct{}) {
	workers := p.Workers
	if workers <= 0 {
		workers = 4
	}
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				case c, ok := <-ready:
					if !ok {
						return
					}
					out := c.Step(waitTimeout)
					if out == Dead {
						continue
					}
					select {
					case ready <- c:
					case <-stop:
						return
					}
				}
			}
		}()
	}
	wg.Wait()
}
