package drafts

import (
	"context"
	"sync"
	"time"

	"chata-intake/internal/domain"

	"go.uber.org/zap"
)

// DefaultDelay quiet period before a draft is written
const DefaultDelay = 2 * time.Second

const writeTimeout = 5 * time.Second

// Debouncer coalesces rapid saves per session: each Schedule restarts the
// session's timer and only the latest snapshot is written when it fires.
// Writes for one session never overlap and never go backwards: a snapshot
// older than the last one written, or older than the last Cancel, is
// dropped. Write failures are logged and dropped.
type Debouncer struct {
	store  *Store
	delay  time.Duration
	logger *zap.Logger

	mu       sync.Mutex
	pending  map[string]*pendingSave
	writing  map[string]chan struct{} // closed when the session's write ends
	queued   map[string]int           // snapshots taken from pending, not yet finished
	floor    map[string]uint64        // snapshots at or below this seq are stale
	seq      uint64
	stopped  bool
	inflight sync.WaitGroup
}

type pendingSave struct {
	state *domain.FormState
	timer *time.Timer
	seq   uint64
}

func NewDebouncer(s *Store, delay time.Duration, logger *zap.Logger) *Debouncer {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Debouncer{
		store:   s,
		delay:   delay,
		logger:  logger,
		pending: map[string]*pendingSave{},
		writing: map[string]chan struct{}{},
		queued:  map[string]int{},
		floor:   map[string]uint64{},
	}
}

// Schedule queues a snapshot of state for writing after the quiet period
func (d *Debouncer) Schedule(state *domain.FormState) {
	snap := state.Clone()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if p, ok := d.pending[snap.ChataID]; ok {
		p.timer.Stop()
	}
	d.seq++
	seq := d.seq
	id := snap.ChataID
	d.pending[id] = &pendingSave{
		state: snap,
		seq:   seq,
		timer: time.AfterFunc(d.delay, func() { d.fire(id, seq) }),
	}
}

// Cancel drops a pending save and waits for a write of the session that
// has already started. No snapshot scheduled before Cancel is written
// afterwards.
func (d *Debouncer) Cancel(chataID string) {
	d.mu.Lock()
	if p, ok := d.pending[chataID]; ok {
		p.timer.Stop()
		delete(d.pending, chataID)
	}
	if d.queued[chataID] > 0 {
		d.floor[chataID] = d.seq
	} else {
		delete(d.floor, chataID)
	}
	busy := d.writing[chataID]
	d.mu.Unlock()

	if busy != nil {
		<-busy
	}
}

// Pending number of sessions with an unwritten snapshot
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Flush writes every pending snapshot now
func (d *Debouncer) Flush(ctx context.Context) {
	d.mu.Lock()
	batch := make([]*pendingSave, 0, len(d.pending))
	for id, p := range d.pending {
		p.timer.Stop()
		batch = append(batch, p)
		delete(d.pending, id)
		d.queued[id]++
	}
	d.inflight.Add(len(batch))
	d.mu.Unlock()

	written := 0
	for _, p := range batch {
		if d.save(ctx, p.state, p.seq) {
			written++
		}
		d.inflight.Done()
	}
	if written > 0 {
		d.logger.Info("Flushed pending drafts", zap.Int("count", written))
	}
}

// Stop cancels all timers and waits for in-flight writes.
// Call Flush first to keep pending snapshots.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.stopped = true
	for id, p := range d.pending {
		p.timer.Stop()
		delete(d.pending, id)
	}
	d.mu.Unlock()
	d.inflight.Wait()
}

func (d *Debouncer) fire(chataID string, seq uint64) {
	d.mu.Lock()
	p, ok := d.pending[chataID]
	if !ok || p.seq != seq || d.stopped {
		d.mu.Unlock()
		return
	}
	delete(d.pending, chataID)
	d.queued[chataID]++
	d.inflight.Add(1)
	d.mu.Unlock()
	defer d.inflight.Done()

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	d.save(ctx, p.state, seq)
}

// save writes a snapshot taken from pending once no other write of the
// session is running and the snapshot is still newer than the floor
func (d *Debouncer) save(ctx context.Context, state *domain.FormState, seq uint64) bool {
	id := state.ChataID

	d.mu.Lock()
	defer func() {
		d.mu.Lock()
		d.queued[id]--
		if d.queued[id] <= 0 {
			delete(d.queued, id)
			if _, ok := d.pending[id]; !ok {
				delete(d.floor, id)
			}
		}
		d.mu.Unlock()
	}()

	for {
		busy := d.writing[id]
		if busy == nil {
			break
		}
		d.mu.Unlock()
		select {
		case <-busy:
		case <-ctx.Done():
			return false
		}
		d.mu.Lock()
	}
	if seq <= d.floor[id] {
		d.mu.Unlock()
		d.logger.Debug("Stale draft snapshot dropped", zap.String("chata_id", id))
		return false
	}
	done := make(chan struct{})
	d.writing[id] = done
	d.floor[id] = seq
	d.mu.Unlock()

	ok := d.write(ctx, state)

	d.mu.Lock()
	delete(d.writing, id)
	d.mu.Unlock()
	close(done)
	return ok
}

func (d *Debouncer) write(ctx context.Context, state *domain.FormState) bool {
	if err := d.store.Save(ctx, state); err != nil {
		d.logger.Warn("Draft save failed, keeping in memory only",
			zap.String("chata_id", state.ChataID),
			zap.Error(err),
		)
		return false
	}
	d.logger.Debug("Draft saved", zap.String("chata_id", state.ChataID))
	return true
}
