package sched

// Filesystem is the slice of the embedded filesystem contract the
// scheduler consumes. The filesystem itself sits above the block-device
// adapter; the scheduler only opens, appends, and syncs sequential log
// files in the root directory.
type Filesystem interface {
	// Mounted reports whether a volume is mounted and usable.
	Mounted() bool

	// ReadDir returns the names of the entries in the root directory.
	ReadDir() ([]string, error)

	// Create creates or truncates the named file in the root directory
	// and opens it for writing.
	Create(name string) (File, error)
}

// File is one open log file.
type File interface {
	// Write appends len(p) bytes, returning how many were accepted.
	// Written data is not crash-safe until Sync.
	Write(p []byte) (int, error)

	// Sync commits all written data and metadata to storage.
	Sync() error

	// Close releases the file without an implicit sync.
	Close() error
}
