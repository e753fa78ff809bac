package pragma

import (
	"os"
	"runtime"
	"strconv"
	"strings"
)

// detectMemoryLimitBytes reads a container memory limit from cgroup v2
// first (the current kernel default), then cgroup v1, then falls back to
// the Go runtime's view of the host. Any read failure falls through to
// the next source rather than erroring, since cache auto-sizing is a
// best-effort tuning knob, not a correctness requirement.
func detectMemoryLimitBytes() int64 {
	if v, ok := readCgroupV2Limit(); ok {
		return v
	}
	if v, ok := readCgroupV1Limit(); ok {
		return v
	}
	return hostMemoryFallbackBytes()
}

func readCgroupV2Limit() (int64, bool) {
	data, err := os.ReadFile("/sys/fs/cgroup/memory.max")
	if err != nil {
		return 0, false
	}
	s := strings.TrimSpace(string(data))
	if s == "max" {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func readCgroupV1Limit() (int64, bool) {
	data, err := os.ReadFile("/sys/fs/cgroup/memory/memory.limit_in_bytes")
	if err != nil {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	// cgroup v1 reports a sentinel close to the max int64 when unbounded.
	if n > 1<<62 {
		return 0, false
	}
	return n, true
}

// hostMemoryFallbackBytes has no portable stdlib way to read total host
// memory, so it falls back to a conservative fixed budget sized off
// runtime.NumCPU() as a rough proxy for instance size.
func hostMemoryFallbackBytes() int64 {
	const perCPU = int64(512 * 1024 * 1024)
	return perCPU * int64(runtime.NumCPU())
}
