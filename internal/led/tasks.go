package led

import (
	"picotick/internal/clock"
	"picotick/internal/eventbus"
	"picotick/internal/sensor"
	"picotick/internal/task"
	logx "picotick/pkg/logx"
)

// Blinker flips one LED each time its task fires.
type Blinker struct {
	bank *Bank
	pin  uint8
	log  logx.Logger
}

func NewBlinker(bank *Bank, pin uint8, log logx.Logger) *Blinker {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Blinker{bank: bank, pin: pin, log: log}
}

func (b *Blinker) Run(t *task.Task) {
	if _, err := b.bank.Flip(b.pin); err != nil {
		// The bank will not accept this pin; stop wasting ticks on it.
		b.log.Error("blink disabled", logx.String("task", t.Name), logx.Err(err))
		t.Callback = nil
	}
}

// Proximity lights an LED while nothing is closer than Threshold.
// It is a bus subscriber; its own value is the subscription context.
type Proximity struct {
	bank      *Bank
	pin       uint8
	threshold uint32
	log       logx.Logger
}

func NewProximity(bank *Bank, pin uint8, thresholdCM uint32, log logx.Logger) *Proximity {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Proximity{bank: bank, pin: pin, threshold: thresholdCM, log: log}
}

func (p *Proximity) SetThreshold(cm uint32) { p.threshold = cm }
func (p *Proximity) Threshold() uint32      { return p.threshold }

// OnReading is an eventbus.Handler; ctx must be the *Proximity.
func OnReading(e eventbus.Event[sensor.Reading], ctx any) {
	p := ctx.(*Proximity)
	near := e.Data.DistanceCM < p.threshold
	if err := p.bank.Set(p.pin, !near); err != nil {
		p.log.Error("proximity led update failed", logx.Err(err))
	}
}

// RateFromDistance returns the blink interval for a distance: nearer is faster.
func RateFromDistance(cm uint32) clock.Millis {
	return clock.Millis(5 + cm*10)
}

// OnReadingRate retunes a blink task from the distance; ctx must be the *task.Task.
func OnReadingRate(e eventbus.Event[sensor.Reading], ctx any) {
	t := ctx.(*task.Task)
	t.Interval = RateFromDistance(e.Data.DistanceCM)
}
