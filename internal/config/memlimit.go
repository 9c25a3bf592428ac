package config

import (
	"os"
	"strconv"
	"strings"
)

// memoryLimitBytes reads the container memory limit from the cgroup
// filesystem. Tries cgroup v2 first, then v1. Returns 0 when no limit is
// set or the host is not containerized.
func memoryLimitBytes() int64 {
	// cgroup v2: a number, or "max" for unlimited.
	if data, err := os.ReadFile("/sys/fs/cgroup/memory.max"); err == nil {
		s := strings.TrimSpace(string(data))
		if s != "max" {
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return n
			}
		}
		return 0
	}

	// cgroup v1: always a number; absurdly large means no effective limit.
	if data, err := os.ReadFile("/sys/fs/cgroup/memory/memory.limit_in_bytes"); err == nil {
		if n, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64); err == nil && n < (1<<50) {
			return n
		}
	}
	return 0
}

// connectionsForMemory sizes the connection cap from a memory limit.
// Each connection holds a 256-slot send buffer plus read/write pump state,
// roughly 64KB at typical message sizes; 128MB is reserved for the runtime,
// the broker clients and goroutine stacks.
func connectionsForMemory(limitBytes int64) int {
	const (
		defaultMax         = 10000
		minConnections     = 100
		maxConnections     = 50000
		runtimeOverhead    = 128 * 1024 * 1024
		bytesPerConnection = 64 * 1024
	)

	if limitBytes <= 0 {
		return defaultMax
	}

	available := limitBytes - runtimeOverhead
	if available < 0 {
		// Very small container: give half the total to connections.
		available = limitBytes / 2
	}

	n := int(available / bytesPerConnection)
	if n < minConnections {
		return minConnections
	}
	if n > maxConnections {
		return maxConnections
	}
	return n
}
