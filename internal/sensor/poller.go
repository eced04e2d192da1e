package sensor

import (
	"time"

	"picotick/internal/task"
	logx "picotick/pkg/logx"
)

// Publisher is the part of the event bus the poller uses.
type Publisher interface {
	Publish(r Reading) int
}

// PollerStats are the poller's counters.
type PollerStats struct {
	Polls     uint64
	Published uint64
	Errors    uint64
	Last      Reading
	HasLast   bool
}

// Poller is a task that checks the ranger's ready flag on every run and
// publishes each new reading. Re-polling on the next run is the retry policy.
type Poller struct {
	ranger Ranger
	pub    Publisher
	errLog logx.Logger
	stats  PollerStats
}

// NewPoller wires a ranger to a publisher. Read errors are logged at most
// once every 5 seconds.
func NewPoller(r Ranger, pub Publisher, log logx.Logger) *Poller {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Poller{ranger: r, pub: pub, errLog: log.Every(5*time.Second, 1)}
}

func (p *Poller) Run(t *task.Task) {
	p.stats.Polls++
	if !p.ranger.DataReady() {
		return
	}
	r, err := p.ranger.Read()
	if err != nil {
		p.stats.Errors++
		p.errLog.Warn("sensor read failed", logx.String("task", t.Name), logx.Uint64("errors", p.stats.Errors), logx.Err(err))
		return
	}
	p.stats.Last = r
	p.stats.HasLast = true
	p.stats.Published++
	p.pub.Publish(r)
}

func (p *Poller) Stats() PollerStats { return p.stats }
