// Package sensor adapts a ranging sensor to the scheduler.
//
// The driver itself (register protocol, calibration, bus transactions) is an
// external collaborator behind Ranger. This package only provides the polling
// task and the host-side stand-ins used when no hardware is attached.
package sensor

import (
	"errors"
	"fmt"

	"picotick/internal/clock"
)

var (
	ErrNotReady     = errors.New("sensor: no data ready")
	ErrReservedAddr = errors.New("sensor: reserved i2c address")
)

// Reading is one ranging sample, the payload published on the event bus.
type Reading struct {
	DistanceCM uint32
	Seq        uint32
}

// Ranger is the driver surface the poller needs.
type Ranger interface {
	// DataReady reports whether a new sample can be read without blocking.
	DataReady() bool
	// Read returns the latest sample and clears the ready flag.
	Read() (Reading, error)
}

// Simulated produces a reading every period with distance (now % 120) + 5 cm.
type Simulated struct {
	clk    clock.Clock
	period clock.Millis
	last   clock.Millis
	seq    uint32
}

// NewSimulated starts counting from the clock's current value.
func NewSimulated(clk clock.Clock, period clock.Millis) *Simulated {
	return &Simulated{clk: clk, period: period, last: clk.Now()}
}

// DataReady wants strictly more than one period, like the firmware's
// now - last_read > period check. Do not replace it with clock.Due.
func (s *Simulated) DataReady() bool {
	return clock.Elapsed(s.clk.Now(), s.last) > s.period
}

func (s *Simulated) Read() (Reading, error) {
	now := s.clk.Now()
	if clock.Elapsed(now, s.last) <= s.period {
		return Reading{}, ErrNotReady
	}
	s.last = now
	s.seq++
	return Reading{DistanceCM: uint32(now%120) + 5, Seq: s.seq}, nil
}

// Scripted replays a fixed list of distances, one per period, looping.
type Scripted struct {
	clk       clock.Clock
	period    clock.Millis
	last      clock.Millis
	distances []uint32
	i         int
	seq       uint32
}

// NewScripted returns a ranger cycling through distances. It needs at least one value.
func NewScripted(clk clock.Clock, period clock.Millis, distances []uint32) (*Scripted, error) {
	if len(distances) == 0 {
		return nil, errors.New("sensor: script needs at least one distance")
	}
	cp := append([]uint32(nil), distances...)
	return &Scripted{clk: clk, period: period, last: clk.Now(), distances: cp}, nil
}

func (s *Scripted) DataReady() bool {
	return clock.Due(s.clk.Now(), s.last, s.period)
}

func (s *Scripted) Read() (Reading, error) {
	now := s.clk.Now()
	if !clock.Due(now, s.last, s.period) {
		return Reading{}, ErrNotReady
	}
	s.last = now
	d := s.distances[s.i]
	s.i = (s.i + 1) % len(s.distances)
	s.seq++
	return Reading{DistanceCM: d, Seq: s.seq}, nil
}

// ReservedAddr reports whether a 7-bit I2C address is in the reserved ranges
// 0000xxx or 1111xxx.
func ReservedAddr(addr uint8) bool {
	return addr&0x78 == 0 || addr&0x78 == 0x78
}

// NormalizeAddr returns the 7-bit form of addr. Datasheets often quote the
// 8-bit (shifted) form, e.g. 0x52 for the default 0x29.
func NormalizeAddr(addr uint8, eightBit bool) uint8 {
	if eightBit {
		return addr >> 1
	}
	return addr & 0x7f
}

// ValidateAddr normalizes addr and rejects reserved addresses.
func ValidateAddr(addr uint8, eightBit bool) (uint8, error) {
	a := NormalizeAddr(addr, eightBit)
	if ReservedAddr(a) {
		return 0, fmt.Errorf("%w: 0x%02x", ErrReservedAddr, a)
	}
	return a, nil
}
