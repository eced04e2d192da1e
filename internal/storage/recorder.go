package storage

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"picotick/internal/clock"
	"picotick/internal/eventbus"
	"picotick/internal/sensor"
	"picotick/internal/task"
	logx "picotick/pkg/logx"
)

const writeTimeout = 2 * time.Second

// RecorderOptions tune NewRecorder.
type RecorderOptions struct {
	// Session tags every record; empty means a fresh random UUID.
	Session string
	// Queue is how many full batches may wait for the writer. Default 4.
	Queue int
	// Wall stamps records; nil means time.Now.
	Wall func() time.Time
	Log  logx.Logger
}

// RecorderStats is a snapshot of the recorder counters.
type RecorderStats struct {
	Recorded    uint64
	Handed      uint64
	Dropped     uint64
	Written     uint64
	WriteErrors uint64
	Pruned      uint64
}

// Recorder buffers readings from the bus and persists them in batches.
//
// OnReading, Run and the prune task run on the scheduler goroutine and never
// block; Writer is the only goroutine that touches the Store.
type Recorder struct {
	store   Store
	session string
	wall    func() time.Time
	log     logx.Logger
	dropLog logx.Logger

	ring []Record
	n    int

	batches chan []Record
	prunes  chan time.Time

	recorded uint64
	handed   uint64
	dropped  uint64

	written     atomic.Uint64
	writeErrors atomic.Uint64
	pruned      atomic.Uint64
}

// NewRecorder returns a recorder that hands the store batches of up to batch readings.
func NewRecorder(store Store, batch int, opt RecorderOptions) (*Recorder, error) {
	if store == nil {
		return nil, ErrDisabled
	}
	if batch < 1 {
		return nil, errors.New("storage: batch must be at least 1")
	}
	if opt.Session == "" {
		opt.Session = uuid.NewString()
	}
	if opt.Queue < 1 {
		opt.Queue = 4
	}
	if opt.Wall == nil {
		opt.Wall = time.Now
	}
	log := opt.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Recorder{
		store:   store,
		session: opt.Session,
		wall:    opt.Wall,
		log:     log,
		dropLog: log.Every(10*time.Second, 1),
		ring:    make([]Record, batch),
		batches: make(chan []Record, opt.Queue),
		prunes:  make(chan time.Time, 1),
	}, nil
}

func (r *Recorder) Session() string { return r.session }

// OnReading is an eventbus.Handler; ctx must be the *Recorder.
func OnReading(e eventbus.Event[sensor.Reading], ctx any) {
	ctx.(*Recorder).add(e.Time, e.Data)
}

func (r *Recorder) add(at clock.Millis, rd sensor.Reading) {
	r.ring[r.n] = Record{
		Session:    r.session,
		Seq:        rd.Seq,
		Tick:       uint32(at),
		At:         r.wall(),
		DistanceCM: rd.DistanceCM,
	}
	r.n++
	r.recorded++
	if r.n == len(r.ring) {
		r.handoff()
	}
}

// Run is the flush task: it hands whatever is buffered to the writer.
func (r *Recorder) Run(*task.Task) {
	if r.n > 0 {
		r.handoff()
	}
}

func (r *Recorder) handoff() {
	batch := make([]Record, r.n)
	copy(batch, r.ring[:r.n])
	select {
	case r.batches <- batch:
		r.handed++
	default:
		r.dropped += uint64(r.n)
		r.dropLog.Warn("writer behind, readings dropped", logx.Int("batch", r.n), logx.Uint64("dropped", r.dropped))
	}
	r.n = 0
}

// PruneFunc returns a task callback that asks the writer to delete records
// older than retain. It is meant to sit behind a cron gate.
func (r *Recorder) PruneFunc(retain time.Duration) task.Func {
	return func(*task.Task) {
		select {
		case r.prunes <- r.wall().Add(-retain):
		default:
		}
	}
}

// Writer persists batches until ctx ends, then writes whatever is still queued.
func (r *Recorder) Writer(ctx context.Context) error {
	r.log.Info("recorder writer started", logx.String("session", r.session))
	defer r.log.Info("recorder writer stopped")
	for {
		select {
		case <-ctx.Done():
			r.drainQueue()
			return nil
		case b := <-r.batches:
			r.write(context.Background(), b)
		case before := <-r.prunes:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			n, err := r.store.Prune(pctx, before)
			cancel()
			if err != nil {
				r.log.Warn("prune failed", logx.Err(err))
				continue
			}
			r.pruned.Add(uint64(n))
			if n > 0 {
				r.log.Info("pruned readings", logx.Int64("rows", n), logx.Time("before", before))
			}
		}
	}
}

func (r *Recorder) drainQueue() {
	for {
		select {
		case b := <-r.batches:
			r.write(context.Background(), b)
		default:
			return
		}
	}
}

func (r *Recorder) write(parent context.Context, b []Record) {
	ctx, cancel := context.WithTimeout(parent, writeTimeout)
	defer cancel()
	if err := r.store.AppendReadings(ctx, b); err != nil {
		r.writeErrors.Add(1)
		r.log.Warn("append readings failed", logx.Int("batch", len(b)), logx.Err(err))
		return
	}
	r.written.Add(uint64(len(b)))
}

// Drain writes the buffered tail straight to the store. Call it from the
// scheduler goroutine after the loop has stopped.
func (r *Recorder) Drain(ctx context.Context) {
	if r.n == 0 {
		return
	}
	b := make([]Record, r.n)
	copy(b, r.ring[:r.n])
	r.n = 0
	r.write(ctx, b)
}

// Buffered is how many readings are waiting for the next flush.
func (r *Recorder) Buffered() int { return r.n }

// Stats must be called from the scheduler goroutine.
func (r *Recorder) Stats() RecorderStats {
	return RecorderStats{
		Recorded:    r.recorded,
		Handed:      r.handed,
		Dropped:     r.dropped,
		Written:     r.written.Load(),
		WriteErrors: r.writeErrors.Load(),
		Pruned:      r.pruned.Load(),
	}
}
