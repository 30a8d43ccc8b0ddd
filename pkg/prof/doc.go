// Package prof provides on-demand profiling for the cardlog storage engine.
//
// It wraps [runtime/pprof] behind the "profile" build tag:
//
//	go test -tags profile
//
// Without the tag every exported function is a no-op, so profiling hooks
// can stay in place in soak-test harnesses without production overhead.
//
// CPU profiling streams samples and requires explicit start/stop:
//
//	prof.StartCPU("cpu.prof")
//	defer prof.StopCPU()
//
// Snapshot profiles capture point-in-time state, which is the usual way
// to inspect flush-latency stalls (mutex contention between the scheduler
// and the block device) during long captures:
//
//	prof.SetMutexProfileFraction(1)
//	prof.Write(prof.ProfileMutex, "mutex.prof")
package prof
