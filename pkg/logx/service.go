package logx

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// DefaultFile is used when file logging is enabled without a path.
const DefaultFile = "./picotick.log"

var stdout io.Writer = os.Stdout

type Config struct {
	Level   string
	Console bool
	File    FileConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

// sinks is the part of a Config that needs writers rebuilt.
func (c Config) sinks() (console bool, file string) {
	if c.File.Enabled {
		file = strings.TrimSpace(c.File.Path)
		if file == "" {
			file = DefaultFile
		}
	}
	// With no sink configured, fall back to the console.
	return c.Console || file == "", file
}

// Service owns the process log sinks and swaps them on Apply.
type Service struct {
	console io.Writer

	mu      sync.Mutex
	cfg     Config
	file    *os.File
	writers zerolog.Logger

	root atomic.Pointer[zerolog.Logger]
}

// New applies cfg and returns the service with a root Logger bound to it.
// Console lines are human-readable; file lines are JSON.
func New(cfg Config) (*Service, Logger) {
	return newService(cfg, stdout)
}

func newService(cfg Config, console io.Writer) (*Service, Logger) {
	s := &Service{console: console}
	s.build(cfg)
	return s, Logger{svc: s}
}

func (s *Service) current() zerolog.Logger {
	if zl := s.root.Load(); zl != nil {
		return *zl
	}
	return zerolog.Nop()
}

func (s *Service) Logger() Logger { return Logger{svc: s} }

// Apply reconfigures the sinks. A level-only change keeps the open log file.
// Safe for concurrent use.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	oc, of := s.cfg.sinks()
	nc, nf := cfg.sinks()
	if oc == nc && of == nf && (nf == "" || s.file != nil) {
		s.cfg = cfg
		zl := s.writers.Level(ParseLevel(cfg.Level))
		s.root.Store(&zl)
		return
	}
	s.closeFile()
	s.buildLocked(cfg)
}

func (s *Service) build(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buildLocked(cfg)
}

func (s *Service) buildLocked(cfg Config) {
	console, path := cfg.sinks()
	var ws []io.Writer
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "logx: open %s: %v\n", path, err)
			console = true
		} else {
			s.file = f
			ws = append(ws, zerolog.SyncWriter(f))
		}
	}
	if console {
		ws = append(ws, consoleWriter(s.console))
	}

	s.cfg = cfg
	s.writers = zerolog.New(zerolog.MultiLevelWriter(ws...)).With().Timestamp().Logger()
	zl := s.writers.Level(ParseLevel(cfg.Level))
	s.root.Store(&zl)
}

func (s *Service) closeFile() {
	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}
}

// Close closes the log file, if any. Call it after the last log line.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func consoleWriter(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{
		Out:          w,
		TimeFormat:   consoleTimeFormat,
		FormatCaller: func(i any) string {
			s, _ := i.(string)
			return s
		},
	}
}
