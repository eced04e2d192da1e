package storage

import (
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrClosed   = errors.New("storage closed")
)

// Config configures storage.
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Record is one persisted reading.
type Record struct {
	Session    string    `json:"session"`
	Seq        uint32    `json:"seq"`
	Tick       uint32    `json:"tick_ms"`
	At         time.Time `json:"at"`
	DistanceCM uint32    `json:"distance_cm"`
}
