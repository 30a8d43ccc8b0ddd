// Package sched implements the background task that owns the active log
// file: it decides when and how much buffered event data to flush so
// every sync lands exactly on a filesystem block boundary, and it
// rotates to a fresh file whenever the write path fails.
//
// The scheduler is an explicit state machine:
//
//	Unmounted -> OpenLog -> ComputeFlushSize -> WaitForData -> WriteData
//	                ^            ^                                 |
//	                |            +------------- success ----------+
//	                +----- WriteFailure <------ failure ----------+
//
// The flush size is not a heuristic. The target filesystem guarantees
// nothing about written-but-unsynced data across a crash, and syncing
// early burns flash write cycles, so the scheduler computes the maximum
// safe deferral from the file's byte offset and the filesystem's
// on-disk block-chaining layout; see [FlushWindow].
//
// Card insertion and removal are supervised externally and reach the
// scheduler only as the edge-triggered [Scheduler.OnFilesystemOnline]
// and [Scheduler.OnFilesystemOffline] calls. Offline is handled as a
// write failure with no further I/O on the open file, so data loss is
// bounded to one flush window of undrained bytes.
package sched
