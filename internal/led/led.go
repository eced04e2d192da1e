// Package led drives indicator LEDs from scheduler tasks and bus subscribers.
package led

import (
	"errors"
	"fmt"

	logx "picotick/pkg/logx"
)

// MaxLEDs is the size of the LED table.
const MaxLEDs = 16

var ErrBankFull = errors.New("led: bank full")

// Pin is one configured GPIO output.
type Pin interface {
	Set(on bool)
}

// Driver configures a GPIO as an output and returns it.
type Driver interface {
	Output(pin uint8) (Pin, error)
}

type entry struct {
	pin uint8
	on  bool
	out Pin
}

// Bank tracks LED state for up to MaxLEDs pins. A pin is configured as an
// output and driven low the first time it is touched.
type Bank struct {
	drv     Driver
	entries [MaxLEDs]entry
	n       int
}

func NewBank(drv Driver) *Bank { return &Bank{drv: drv} }

func (b *Bank) get(pin uint8) (*entry, error) {
	for i := 0; i < b.n; i++ {
		if b.entries[i].pin == pin {
			return &b.entries[i], nil
		}
	}
	if b.n == MaxLEDs {
		return nil, fmt.Errorf("%w: pin %d", ErrBankFull, pin)
	}
	out, err := b.drv.Output(pin)
	if err != nil {
		return nil, fmt.Errorf("led: configure pin %d: %w", pin, err)
	}
	out.Set(false)
	e := &b.entries[b.n]
	*e = entry{pin: pin, out: out}
	b.n++
	return e, nil
}

// Set drives pin to on.
func (b *Bank) Set(pin uint8, on bool) error {
	e, err := b.get(pin)
	if err != nil {
		return err
	}
	e.out.Set(on)
	e.on = on
	return nil
}

func (b *Bank) On(pin uint8) error  { return b.Set(pin, true) }
func (b *Bank) Off(pin uint8) error { return b.Set(pin, false) }

// IsOn reports the last state written to pin.
func (b *Bank) IsOn(pin uint8) (bool, error) {
	e, err := b.get(pin)
	if err != nil {
		return false, err
	}
	return e.on, nil
}

// Flip inverts pin and returns the new state.
func (b *Bank) Flip(pin uint8) (bool, error) {
	e, err := b.get(pin)
	if err != nil {
		return false, err
	}
	e.on = !e.on
	e.out.Set(e.on)
	return e.on, nil
}

func (b *Bank) Len() int { return b.n }

// LogDriver stands in for GPIO on a host: every edge is logged at debug level.
type LogDriver struct {
	Log logx.Logger
}

func (d LogDriver) Output(pin uint8) (Pin, error) {
	log := d.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &logPin{pin: pin, log: log}, nil
}

type logPin struct {
	pin uint8
	on  bool
	log logx.Logger
}

func (p *logPin) Set(on bool) {
	if p.on == on {
		return
	}
	p.on = on
	p.log.Debug("gpio", logx.Int("pin", int(p.pin)), logx.Bool("on", on))
}
