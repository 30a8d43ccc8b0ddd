package sched

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/cardlog/cardlog/ringbuf"
	"github.com/cardlog/cardlog/sdcard"
)

// memFS is a task-context fake of the filesystem contract.
type memFS struct {
	mounted   bool
	files     map[string]*memFile
	createErr error
	scanErr   error
}

func newMemFS() *memFS {
	return &memFS{mounted: true, files: make(map[string]*memFile)}
}

func (fs *memFS) Mounted() bool { return fs.mounted }

func (fs *memFS) ReadDir() ([]string, error) {
	if fs.scanErr != nil {
		return nil, fs.scanErr
	}
	names := make([]string, 0, len(fs.files))
	for name := range fs.files {
		names = append(names, name)
	}
	return names, nil
}

func (fs *memFS) Create(name string) (File, error) {
	if fs.createErr != nil {
		return nil, fs.createErr
	}
	f := &memFile{}
	fs.files[name] = f
	return f, nil
}

type memFile struct {
	data       bytes.Buffer
	synced     int // Bytes covered by the last sync
	closes     int
	writeErr   error
	shortWrite bool
	syncErr    error
}

func (f *memFile) Write(p []byte) (int, error) {
	if f.writeErr != nil {
		err := f.writeErr
		f.writeErr = nil
		return 0, err
	}
	if f.shortWrite {
		f.shortWrite = false
		n := len(p) / 2
		f.data.Write(p[:n])
		return n, nil
	}
	return f.data.Write(p)
}

func (f *memFile) Sync() error {
	if f.syncErr != nil {
		err := f.syncErr
		f.syncErr = nil
		return err
	}
	f.synced = f.data.Len()
	return nil
}

func (f *memFile) Close() error {
	f.closes++
	return nil
}

const testBlockSize = 64

func newTestScheduler(fs *memFS) (*Scheduler, *ringbuf.Buffer) {
	buf := ringbuf.New(4096, &ringbuf.TaskSection{})
	s := New(Config{
		FS:           fs,
		Buffer:       buf,
		BlockSize:    testBlockSize,
		PollInterval: time.Millisecond,
	})
	s.OnFilesystemOnline(sdcard.Session{Operational: true})
	return s, buf
}

// stepUntil steps the machine until it reaches want, failing after a
// bounded number of transitions.
func stepUntil(t *testing.T, s *Scheduler, want State) {
	t.Helper()
	for i := 0; i < 100; i++ {
		if s.State() == want {
			return
		}
		if idle := s.Step(); idle && s.State() != want {
			t.Fatalf("machine idle in %v, want %v", s.State(), want)
		}
	}
	t.Fatalf("state %v never reached, stuck in %v", want, s.State())
}

// fillWindow inserts events totalling at least n buffered bytes and
// returns the exact byte stream inserted.
func fillWindow(t *testing.T, buf *ringbuf.Buffer, n int) []byte {
	t.Helper()
	var stream bytes.Buffer
	id := byte(0)
	for buf.Occupancy() < n {
		payload := []byte{id + 1, id + 2}
		if !buf.Insert(id, payload) {
			t.Fatal("insert failed while filling")
		}
		stream.WriteByte(id)
		stream.Write(payload)
		id++
	}
	return stream.Bytes()
}

func TestFirstFlushFillsFirstBlock(t *testing.T) {
	fs := newMemFS()
	s, buf := newTestScheduler(fs)

	stepUntil(t, s, StateWaitForData)
	if s.FileName() != "log0" {
		t.Errorf("FileName() = %q, want log0", s.FileName())
	}

	stream := fillWindow(t, buf, testBlockSize)
	stepUntil(t, s, StateWriteData)
	s.Step()

	if s.State() != StateComputeFlushSize {
		t.Fatalf("state after flush = %v", s.State())
	}
	f := fs.files["log0"]
	if f.data.Len() != testBlockSize {
		t.Errorf("file holds %d bytes, want %d", f.data.Len(), testBlockSize)
	}
	if !bytes.Equal(f.data.Bytes(), stream[:testBlockSize]) {
		t.Error("flushed bytes differ from inserted stream")
	}
	if f.synced != testBlockSize {
		t.Errorf("synced %d bytes, want %d", f.synced, testBlockSize)
	}

	stats := s.WriteStats()
	if stats.Count == 0 || stats.Bytes != testBlockSize {
		t.Errorf("write stats = %+v", stats)
	}
}

func TestSecondWindowAccountsForPointerOverhead(t *testing.T) {
	fs := newMemFS()
	s, buf := newTestScheduler(fs)

	fillWindow(t, buf, 2*testBlockSize)
	stepUntil(t, s, StateWriteData)
	s.Step() // first flush: full block
	s.Step() // compute second window

	// Second logical block reserves one pointer word.
	if s.window != testBlockSize-wordSize {
		t.Errorf("second window = %d, want %d", s.window, testBlockSize-wordSize)
	}
}

func TestSuffixSelection(t *testing.T) {
	tests := []struct {
		name     string
		existing []string
		scanErr  error
		want     string
	}{
		{"empty directory", nil, nil, "log0"},
		{"one past max", []string{"log3", "log27", "log9"}, nil, "log28"},
		{"ignores other names", []string{"readme", "log9x", "xlog5", "log123456"}, nil, "log0"},
		{"five digit suffix", []string{"log99998"}, nil, "log99999"},
		{"scan failure falls back", []string{"log7"}, errors.New("io"), "log0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := newMemFS()
			for _, name := range tt.existing {
				fs.files[name] = &memFile{}
			}
			fs.scanErr = tt.scanErr
			s, _ := newTestScheduler(fs)

			stepUntil(t, s, StateWaitForData)
			if s.FileName() != tt.want {
				t.Errorf("FileName() = %q, want %q", s.FileName(), tt.want)
			}
		})
	}
}

func TestParseSuffix(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		want   int
		ok     bool
	}{
		{"log0", "log", 0, true},
		{"log42", "log", 42, true},
		{"log99999", "log", 99999, true},
		{"log123456", "log", 0, false}, // six digits
		{"log", "log", 0, false},       // no digits
		{"log4x", "log", 0, false},
		{"data7", "log", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseSuffix(tt.name, tt.prefix)
			if ok != tt.ok || (ok && got != tt.want) {
				t.Errorf("parseSuffix(%q) = %d, %v, want %d, %v",
					tt.name, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestWriteFailureRotates(t *testing.T) {
	fs := newMemFS()
	s, buf := newTestScheduler(fs)

	fillWindow(t, buf, 2*testBlockSize)
	stepUntil(t, s, StateWaitForData)
	old := fs.files["log0"]
	old.writeErr = errors.New("program failed")

	stepUntil(t, s, StateWriteData)
	s.Step()
	if s.State() != StateWriteFailure {
		t.Fatalf("state after failed flush = %v", s.State())
	}

	// Rotation: old file closed best-effort, new file has the next
	// suffix, and the machine keeps running.
	stepUntil(t, s, StateWaitForData)
	if old.closes != 1 {
		t.Errorf("old file closes = %d, want 1", old.closes)
	}
	if s.FileName() != "log1" {
		t.Errorf("FileName() after rotation = %q, want log1", s.FileName())
	}
	if s.Rotations() != 1 {
		t.Errorf("Rotations() = %d, want 1", s.Rotations())
	}

	// The next flush still succeeds into the new file.
	stepUntil(t, s, StateWriteData)
	s.Step()
	if fs.files["log1"].data.Len() != testBlockSize {
		t.Errorf("new file holds %d bytes, want %d",
			fs.files["log1"].data.Len(), testBlockSize)
	}
}

func TestShortWriteRotates(t *testing.T) {
	fs := newMemFS()
	s, buf := newTestScheduler(fs)

	fillWindow(t, buf, testBlockSize)
	stepUntil(t, s, StateWaitForData)
	fs.files["log0"].shortWrite = true

	stepUntil(t, s, StateWriteData)
	s.Step()
	if s.State() != StateWriteFailure {
		t.Fatalf("state after short write = %v", s.State())
	}
	stepUntil(t, s, StateOpenLog)
}

func TestSyncFailureRotates(t *testing.T) {
	fs := newMemFS()
	s, buf := newTestScheduler(fs)

	fillWindow(t, buf, testBlockSize)
	stepUntil(t, s, StateWaitForData)
	fs.files["log0"].syncErr = errors.New("sync failed")

	stepUntil(t, s, StateWriteData)
	s.Step()
	if s.State() != StateWriteFailure {
		t.Fatalf("state after failed sync = %v", s.State())
	}
}

func TestOfflineAbandonsFileWithoutIO(t *testing.T) {
	fs := newMemFS()
	s, buf := newTestScheduler(fs)

	stepUntil(t, s, StateWaitForData)
	old := fs.files["log0"]

	s.OnFilesystemOffline()
	s.Step() // WaitForData notices offline
	if s.State() != StateWriteFailure {
		t.Fatalf("state after offline = %v", s.State())
	}
	s.Step()
	if s.State() != StateUnmounted {
		t.Fatalf("state after abandonment = %v", s.State())
	}
	if old.closes != 0 {
		t.Errorf("offline abandonment touched the file: %d closes", old.closes)
	}

	// Re-insertion: a fresh session resumes logging in a new file.
	fillWindow(t, buf, testBlockSize)
	if !s.OnFilesystemOnline(sdcard.Session{Operational: true}) {
		t.Fatal("OnFilesystemOnline rejected fresh session")
	}
	stepUntil(t, s, StateWaitForData)
	if s.FileName() != "log1" {
		t.Errorf("FileName() after reinsertion = %q, want log1", s.FileName())
	}
}

func TestCardSwapAbandonsStaleFile(t *testing.T) {
	// Offline then online again between two steps: the file opened on
	// the old session must be abandoned with no further I/O, even
	// though the scheduler observes an online filesystem throughout.
	fs := newMemFS()
	s, buf := newTestScheduler(fs)

	stepUntil(t, s, StateWaitForData)
	old := fs.files["log0"]
	fillWindow(t, buf, testBlockSize)

	s.OnFilesystemOffline()
	if !s.OnFilesystemOnline(sdcard.Session{Operational: true}) {
		t.Fatal("OnFilesystemOnline rejected the swapped session")
	}

	s.Step()
	if s.State() != StateWriteFailure {
		t.Fatalf("state after swap = %v, want write-failure", s.State())
	}
	stepUntil(t, s, StateWaitForData)

	if old.closes != 0 || old.data.Len() != 0 {
		t.Errorf("stale file touched: %d closes, %d bytes", old.closes, old.data.Len())
	}
	if s.Rotations() != 1 {
		t.Errorf("Rotations() = %d, want 1", s.Rotations())
	}
	if s.FileName() != "log1" {
		t.Errorf("FileName() = %q, want log1", s.FileName())
	}

	// The buffered window lands in the new session's file.
	stepUntil(t, s, StateWriteData)
	s.Step()
	if fs.files["log1"].data.Len() != testBlockSize {
		t.Errorf("new file holds %d bytes, want %d",
			fs.files["log1"].data.Len(), testBlockSize)
	}
}

func TestFileNameConcurrentWithLifecycle(t *testing.T) {
	// Supervisor goroutine reads the file name and toggles the session
	// while the task steps; exercised under the race detector.
	fs := newMemFS()
	s, buf := newTestScheduler(fs)
	fillWindow(t, buf, 4*testBlockSize)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			_ = s.FileName()
			if i%100 == 50 {
				s.OnFilesystemOffline()
				s.OnFilesystemOnline(sdcard.Session{Operational: true})
			}
		}
	}()

	for i := 0; i < 2000; i++ {
		s.Step()
	}
	<-done
}

func TestOnlineIsEdgeTriggered(t *testing.T) {
	fs := newMemFS()
	s, _ := newTestScheduler(fs)

	if s.OnFilesystemOnline(sdcard.Session{}) {
		t.Error("second online accepted while already online")
	}
}

func TestUnmountedWaitsForMount(t *testing.T) {
	fs := newMemFS()
	fs.mounted = false
	s, _ := newTestScheduler(fs)

	if idle := s.Step(); !idle || s.State() != StateUnmounted {
		t.Fatalf("Step() = %v in %v, want idle in unmounted", idle, s.State())
	}
	fs.mounted = true
	stepUntil(t, s, StateWaitForData)
}

func TestCreateFailureReturnsToUnmounted(t *testing.T) {
	fs := newMemFS()
	s, _ := newTestScheduler(fs)
	fs.createErr = errors.New("no space")

	s.Step() // Unmounted -> OpenLog
	s.Step() // OpenLog fails
	if s.State() != StateUnmounted {
		t.Fatalf("state after create failure = %v", s.State())
	}
}

func TestFlushStreamIntegrity(t *testing.T) {
	// Multiple flush cycles: the concatenation of everything written to
	// the file equals the inserted stream prefix, in order.
	fs := newMemFS()
	s, buf := newTestScheduler(fs)

	stream := fillWindow(t, buf, 5*testBlockSize)
	stepUntil(t, s, StateWaitForData)

	for cycle := 0; cycle < 4; cycle++ {
		stepUntil(t, s, StateWriteData)
		s.Step()
		if s.State() != StateComputeFlushSize {
			t.Fatalf("cycle %d ended in %v", cycle, s.State())
		}
		s.Step()
	}

	f := fs.files["log0"]
	written := f.data.Len()
	if !bytes.Equal(f.data.Bytes(), stream[:written]) {
		t.Error("file contents diverged from inserted stream")
	}
	if f.synced != written {
		t.Errorf("synced %d of %d written bytes", f.synced, written)
	}
}
