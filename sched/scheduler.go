package sched

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cardlog/cardlog/pkg"
	"github.com/cardlog/cardlog/ringbuf"
	"github.com/cardlog/cardlog/sdcard"
)

// State identifies a scheduler state.
type State uint8

// Scheduler states.
const (
	StateUnmounted        State = iota // Waiting for a mounted filesystem
	StateOpenLog                       // Choosing and creating the next log file
	StateComputeFlushSize              // Deriving the flush window from the file offset
	StateWaitForData                   // Waiting for one window of buffered data
	StateWriteData                     // Draining the buffer into the file
	StateWriteFailure                  // Abandoning the file before rotation
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUnmounted:
		return "unmounted"
	case StateOpenLog:
		return "open-log"
	case StateComputeFlushSize:
		return "compute-flush-size"
	case StateWaitForData:
		return "wait-for-data"
	case StateWriteData:
		return "write-data"
	case StateWriteFailure:
		return "write-failure"
	default:
		return "unknown"
	}
}

// suffixDigitsMax bounds the decimal suffix of a log file name; the
// rotation scan recognizes no other naming scheme.
const suffixDigitsMax = 5

// Config parameterizes a Scheduler.
type Config struct {
	// FS is the mounted filesystem holding the log files.
	FS Filesystem

	// Buffer is the ring buffer shared with event producers.
	Buffer *ringbuf.Buffer

	// Prefix names log files: Prefix followed by a 1-5 digit decimal
	// suffix. Defaults to "log".
	Prefix string

	// BlockSize is the filesystem's logical block size, which dictates
	// the flush windows. Defaults to 512.
	BlockSize uint32

	// PollInterval is the cadence of the mount and occupancy polls.
	// Defaults to one second.
	PollInterval time.Duration
}

// Scheduler owns the active log file and drains the ring buffer into it
// one flush window at a time. All state-machine fields belong to the
// single background task; only the lifecycle flag, the session, and the
// statistics are shared with other goroutines.
type Scheduler struct {
	cfg Config

	state   State
	file    File
	offset  uint32 // Current file byte position
	window  uint32 // Bytes until the next forced sync
	fileGen uint32 // Eject count when the file was opened

	online  atomic.Bool
	ejects  atomic.Uint32 // Total offline edges, latched for the task
	rotated atomic.Uint32

	mu          sync.Mutex
	fileName    string
	session     sdcard.Session
	writeStats  pkg.Latency
	lastDropped uint32
}

// New creates a scheduler in the unmounted state.
func New(cfg Config) *Scheduler {
	if cfg.Prefix == "" {
		cfg.Prefix = "log"
	}
	if cfg.BlockSize == 0 {
		cfg.BlockSize = 512
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Second
	}
	return &Scheduler{cfg: cfg, state: StateUnmounted}
}

// LogEvent enqueues one event for durable logging. It is the producer
// contract: callable from interrupt or task context (per the buffer's
// section primitive), never blocking. A false return means the buffer
// was full and the event was dropped and counted.
func (s *Scheduler) LogEvent(id byte, payload []byte) bool {
	return s.cfg.Buffer.Insert(id, payload)
}

// OnFilesystemOnline is the hotplug supervisor's edge-triggered signal
// that a card session is operational and the filesystem is coming up.
// It returns false if the scheduler already holds an online session.
func (s *Scheduler) OnFilesystemOnline(session sdcard.Session) bool {
	if !s.online.CompareAndSwap(false, true) {
		return false
	}
	s.mu.Lock()
	s.session = session
	s.mu.Unlock()
	pkg.LogInfo(pkg.ComponentScheduler, "filesystem online",
		"blocks", session.Geometry.CapacityBlocks,
		"initTime", session.InitTime)
	return true
}

// OnFilesystemOffline is the edge-triggered signal that the card is
// gone. The open log file is abandoned with no further I/O; at most one
// flush window of buffered bytes is lost. The edge is latched in the
// eject counter so a file opened before it is abandoned even when a new
// session comes online before the next step.
func (s *Scheduler) OnFilesystemOffline() {
	if s.online.CompareAndSwap(true, false) {
		s.ejects.Add(1)
		s.mu.Lock()
		name := s.fileName
		s.mu.Unlock()
		pkg.LogWarn(pkg.ComponentScheduler, "filesystem offline", "file", name)
	}
}

// State returns the current state. Test hook; the background task is
// the only writer.
func (s *Scheduler) State() State {
	return s.state
}

// FileName returns the name of the open log file, empty when none.
func (s *Scheduler) FileName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fileName
}

// Rotations returns how many times the scheduler abandoned a file.
func (s *Scheduler) Rotations() uint32 {
	return s.rotated.Load()
}

// WriteStats returns a snapshot of flush latency statistics.
func (s *Scheduler) WriteStats() pkg.Latency {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeStats
}

// Run drives the state machine until ctx is cancelled, sleeping one
// poll interval whenever a step reports nothing to do.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		idle := s.Step()
		if ctx.Err() != nil {
			return
		}
		if !idle {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.PollInterval):
		}
	}
}

// Step executes one state transition. It returns true when the machine
// is waiting on an external condition and the caller should sleep one
// poll interval before stepping again.
func (s *Scheduler) Step() bool {
	switch s.state {
	case StateUnmounted:
		return s.stepUnmounted()
	case StateOpenLog:
		return s.stepOpenLog()
	case StateComputeFlushSize:
		return s.stepComputeFlushSize()
	case StateWaitForData:
		return s.stepWaitForData()
	case StateWriteData:
		return s.stepWriteData()
	case StateWriteFailure:
		return s.stepWriteFailure()
	default:
		panic("sched: invalid state " + s.state.String())
	}
}

func (s *Scheduler) stepUnmounted() bool {
	if !s.online.Load() || !s.cfg.FS.Mounted() {
		return true
	}
	s.state = StateOpenLog
	return false
}

func (s *Scheduler) stepOpenLog() bool {
	if !s.online.Load() {
		s.state = StateUnmounted
		return false
	}

	// Bind the file to the current session generation before touching
	// storage; an eject during or after Create makes the file stale.
	gen := s.ejects.Load()

	name := s.cfg.Prefix + strconv.Itoa(s.nextSuffix())
	f, err := s.cfg.FS.Create(name)
	if err != nil {
		pkg.LogWarn(pkg.ComponentScheduler, "log open failed", "name", name, "error", err)
		s.state = StateUnmounted
		return false
	}

	s.file = f
	s.fileGen = gen
	s.mu.Lock()
	s.fileName = name
	s.mu.Unlock()
	s.offset = 0
	s.state = StateComputeFlushSize
	pkg.LogInfo(pkg.ComponentScheduler, "log file opened", "name", name)
	return false
}

func (s *Scheduler) stepComputeFlushSize() bool {
	s.window = FlushWindow(s.offset, s.cfg.BlockSize)
	s.state = StateWaitForData
	return false
}

func (s *Scheduler) stepWaitForData() bool {
	if !s.online.Load() || s.staleFile() {
		s.state = StateWriteFailure
		return false
	}
	s.reportDropped()
	if uint32(s.cfg.Buffer.Occupancy()) < s.window {
		return true
	}
	s.state = StateWriteData
	return false
}

func (s *Scheduler) stepWriteData() bool {
	n, err := s.cfg.Buffer.Drain(int(s.window), s.writeSegment)
	if err != nil || uint32(n) != s.window {
		pkg.LogWarn(pkg.ComponentScheduler, "flush failed",
			"file", s.fileName, "wrote", n, "window", s.window, "error", err)
		s.state = StateWriteFailure
		return false
	}

	if err := s.file.Sync(); err != nil {
		pkg.LogWarn(pkg.ComponentScheduler, "sync failed", "file", s.fileName, "error", err)
		s.state = StateWriteFailure
		return false
	}

	s.offset += uint32(n)
	s.state = StateComputeFlushSize
	return false
}

// writeSegment appends one drained buffer segment to the log file,
// recording per-call latency. A short write is promoted to an error:
// it is fatal for this file.
func (s *Scheduler) writeSegment(seg []byte) (int, error) {
	if !s.online.Load() || s.staleFile() {
		return 0, pkg.ErrOffline
	}

	start := time.Now()
	n, err := s.file.Write(seg)
	d := time.Since(start)

	s.mu.Lock()
	s.writeStats.Observe(d, n)
	s.mu.Unlock()

	if err == nil && n < len(seg) {
		err = pkg.ErrShortWrite
	}
	return n, err
}

func (s *Scheduler) stepWriteFailure() bool {
	if s.file != nil {
		// Best effort; a file from an ejected card gets no further
		// I/O, not even a close.
		if s.online.Load() && !s.staleFile() {
			_ = s.file.Close()
		}
		s.file = nil
		s.mu.Lock()
		s.fileName = ""
		s.mu.Unlock()
	}
	s.rotated.Add(1)

	if s.online.Load() {
		s.state = StateOpenLog
	} else {
		s.state = StateUnmounted
	}
	return false
}

// staleFile reports whether an offline edge has occurred since the
// current file was opened. The open file must then be abandoned even if
// a new session is already online.
func (s *Scheduler) staleFile() bool {
	return s.ejects.Load() != s.fileGen
}

// reportDropped logs producer drops accumulated since the last poll.
// Drops are counted silently at insert time, never surfaced to the
// producer beyond the insert result.
func (s *Scheduler) reportDropped() {
	d := s.cfg.Buffer.Dropped()
	s.mu.Lock()
	last := s.lastDropped
	s.lastDropped = d
	s.mu.Unlock()
	if d != last {
		pkg.LogWarn(pkg.ComponentScheduler, "events dropped", "count", d-last, "total", d)
	}
}

// nextSuffix scans the root directory for files named prefix plus a one
// to five digit decimal suffix and returns one past the maximum, or 0
// when none match or the scan fails.
func (s *Scheduler) nextSuffix() int {
	names, err := s.cfg.FS.ReadDir()
	if err != nil {
		pkg.LogWarn(pkg.ComponentScheduler, "directory scan failed", "error", err)
		return 0
	}

	max := -1
	for _, name := range names {
		if n, ok := parseSuffix(name, s.cfg.Prefix); ok && n > max {
			max = n
		}
	}
	return max + 1
}

// parseSuffix extracts the decimal suffix from a log file name.
func parseSuffix(name, prefix string) (int, bool) {
	if !strings.HasPrefix(name, prefix) {
		return 0, false
	}
	digits := name[len(prefix):]
	if len(digits) < 1 || len(digits) > suffixDigitsMax {
		return 0, false
	}
	n := 0
	for i := 0; i < len(digits); i++ {
		c := digits[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}
