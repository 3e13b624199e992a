// README: Worker pool that feeds decoded fixes to the tracking coordinator.
package ingest

import (
	"context"
	"errors"
	"hash/fnv"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"fleet/internal/modules/ledger"
	"fleet/internal/modules/tracking"
	"fleet/internal/types"
)

type Recorder interface {
	RecordFix(ctx context.Context, cmd tracking.FixCommand) (ledger.Point, error)
}

var ErrPoolClosed = errors.New("ingest pool closed")

// Stats are running counters since the last reset.
type Stats struct {
	Received  int64
	Processed int64
	Rejected  int64
	Failed    int64
}

// Pool shards fixes by asset ID so each asset is handled by one worker and
// its fixes keep their arrival order.
type Pool struct {
	recorder Recorder
	shards   []chan tracking.FixCommand
	timeout  time.Duration
	wg       sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	received  atomic.Int64
	processed atomic.Int64
	rejected  atomic.Int64
	failed    atomic.Int64
}

func NewPool(recorder Recorder, workers, buffer int, timeout time.Duration) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if buffer <= 0 {
		buffer = 100
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	p := &Pool{recorder: recorder, timeout: timeout}
	p.shards = make([]chan tracking.FixCommand, workers)
	for i := range p.shards {
		p.shards[i] = make(chan tracking.FixCommand, buffer)
	}
	return p
}

// Start launches one goroutine per shard.
func (p *Pool) Start() {
	for i, ch := range p.shards {
		p.wg.Add(1)
		go func(id int, ch <-chan tracking.FixCommand) {
			defer p.wg.Done()
			for cmd := range ch {
				p.process(id, cmd)
			}
		}(i, ch)
	}
}

// Submit queues a fix, blocking while the asset's shard is full.
func (p *Pool) Submit(ctx context.Context, cmd tracking.FixCommand) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	p.received.Add(1)
	select {
	case p.shards[p.shard(cmd.AssetID)] <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting fixes and waits for queued ones to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		for _, ch := range p.shards {
			close(ch)
		}
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) shard(id types.ID) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return int(h.Sum32() % uint32(len(p.shards)))
}

func (p *Pool) process(worker int, cmd tracking.FixCommand) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if _, err := p.recorder.RecordFix(ctx, cmd); err != nil {
		if errors.Is(err, types.ErrStorageUnavailable) {
			p.failed.Add(1)
		} else {
			p.rejected.Add(1)
		}
		log.Printf("ingest worker %d: asset=%s: %v", worker, cmd.AssetID, err)
		return
	}
	p.processed.Add(1)
}

// reject counts a message dropped before it reached the pool.
func (p *Pool) reject() {
	p.received.Add(1)
	p.rejected.Add(1)
}

func (p *Pool) Stats() Stats {
	return Stats{
		Received:  p.received.Load(),
		Processed: p.processed.Load(),
		Rejected:  p.rejected.Load(),
		Failed:    p.failed.Load(),
	}
}

// RunStatsReporter logs and resets the counters every interval.
func (p *Pool) RunStatsReporter(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := Stats{
				Received:  p.received.Swap(0),
				Processed: p.processed.Swap(0),
				Rejected:  p.rejected.Swap(0),
				Failed:    p.failed.Swap(0),
			}
			log.Printf("ingest stats: received=%d processed=%d rejected=%d failed=%d",
				s.Received, s.Processed, s.Rejected, s.Failed)
		}
	}
}
