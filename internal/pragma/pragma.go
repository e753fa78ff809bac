// Package pragma validates and renders the SQLite PRAGMA settings the
// local driver applies at open time (spec.md §4.G), and sizes the page
// cache from available memory when the caller asks for auto-sizing.
package pragma

import (
	"fmt"
	"strings"
)

// Settings is the subset of SQLite PRAGMAs this module manages. Every
// field is validated against a fixed whitelist before being rendered into
// SQL text, since PRAGMA values can't be parameterized with placeholders.
type Settings struct {
	JournalMode string // DELETE, TRUNCATE, PERSIST, MEMORY, WAL, OFF
	Synchronous string // OFF, NORMAL, FULL, EXTRA
	TempStore   string // DEFAULT, FILE, MEMORY
	LockingMode string // NORMAL, EXCLUSIVE
	AutoVacuum  string // NONE, FULL, INCREMENTAL

	// CacheSizeKiB is negative-KiB page cache sizing per SQLite's own
	// convention (a negative PRAGMA cache_size value means "this many
	// KiB" rather than "this many pages"). Zero leaves SQLite's default.
	CacheSizeKiB int

	// AutoSizeCache, when true, ignores CacheSizeKiB and instead derives
	// a cache size from the container's memory limit (cgroup v1/v2) or,
	// when neither is readable, a fixed budget of 512 MiB per CPU.
	AutoSizeCache bool
}

var (
	journalModes = whitelist("DELETE", "TRUNCATE", "PERSIST", "MEMORY", "WAL", "OFF")
	syncModes    = whitelist("OFF", "NORMAL", "FULL", "EXTRA")
	tempStores   = whitelist("DEFAULT", "FILE", "MEMORY")
	lockModes    = whitelist("NORMAL", "EXCLUSIVE")
	autoVacuums  = whitelist("NONE", "FULL", "INCREMENTAL")
)

func whitelist(values ...string) map[string]bool {
	m := make(map[string]bool, len(values))
	for _, v := range values {
		m[v] = true
	}
	return m
}

// Render validates s and produces the PRAGMA statements to execute, in a
// fixed order. Unset string fields (empty string) are skipped and SQLite's
// own default applies.
func Render(s Settings) ([]string, error) {
	var stmts []string

	add := func(name, value string, allowed map[string]bool) error {
		if value == "" {
			return nil
		}
		upper := strings.ToUpper(value)
		if !allowed[upper] {
			return fmt.Errorf("pragma: invalid %s %q", name, value)
		}
		stmts = append(stmts, fmt.Sprintf("PRAGMA %s = %s", name, upper))
		return nil
	}

	if err := add("journal_mode", s.JournalMode, journalModes); err != nil {
		return nil, err
	}
	if err := add("synchronous", s.Synchronous, syncModes); err != nil {
		return nil, err
	}
	if err := add("temp_store", s.TempStore, tempStores); err != nil {
		return nil, err
	}
	if err := add("locking_mode", s.LockingMode, lockModes); err != nil {
		return nil, err
	}
	if err := add("auto_vacuum", s.AutoVacuum, autoVacuums); err != nil {
		return nil, err
	}

	cacheKiB := s.CacheSizeKiB
	if s.AutoSizeCache {
		cacheKiB = autoCacheSizeKiB()
	}
	if cacheKiB != 0 {
		stmts = append(stmts, fmt.Sprintf("PRAGMA cache_size = -%d", abs(cacheKiB)))
	}

	stmts = append(stmts, "PRAGMA foreign_keys = ON")
	return stmts, nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// cacheFraction is the share of available memory dedicated to SQLite's
// page cache when auto-sizing.
const cacheFraction = 0.25

// Auto-sized cache_size is clamped to [-256000, -16000] KiB (spec.md §6);
// minCacheSizeKiB/maxCacheSizeKiB hold the magnitudes since this package
// carries cache sizes as positive KiB and negates them at render time.
const (
	minCacheSizeKiB         = 16000
	maxCacheSizeKiB         = 256000
	lowMemoryThresholdBytes = 160 * 1024 * 1024
)

// autoCacheSizeKiB derives a cache_size in KiB from the memory available
// to this process: a cgroup v2 limit, falling back to cgroup v1, falling
// back to a fixed budget of 512 MiB per CPU. Hosts/containers with less than 160 MiB
// available fall back to the minimum rather than scaling down further.
func autoCacheSizeKiB() int {
	limitBytes := detectMemoryLimitBytes()
	if limitBytes < lowMemoryThresholdBytes {
		return minCacheSizeKiB
	}
	kib := int(float64(limitBytes) / 1024 * cacheFraction)
	return clampCacheSizeKiB(kib)
}

func clampCacheSizeKiB(kib int) int {
	if kib < minCacheSizeKiB {
		return minCacheSizeKiB
	}
	if kib > maxCacheSizeKiB {
		return maxCacheSizeKiB
	}
	return kib
}
