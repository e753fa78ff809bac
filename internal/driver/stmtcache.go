package driver

import (
	"database/sql"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// stmtCacheCapacity is the LRU bound from spec.md §4.G: "capacity 100".
const stmtCacheCapacity = 100

// stmtCache is a driver-local LRU of prepared statements keyed by SQL text.
// Eviction finalizes the evicted statement before discard (spec.md §3
// Invariant 6); Clear finalizes every remaining entry.
type stmtCache struct {
	mu    sync.Mutex
	cache *lru.Cache[string, *sql.Stmt]
}

func newStmtCache() *stmtCache {
	sc := &stmtCache{}
	c, err := lru.NewWithEvict[string, *sql.Stmt](stmtCacheCapacity, func(_ string, stmt *sql.Stmt) {
		_ = stmt.Close()
	})
	if err != nil {
		panic("driver: invalid statement cache capacity")
	}
	sc.cache = c
	return sc
}

// getOrPrepare returns a cached *sql.Stmt for sqlText, preparing and
// inserting it if absent.
func (sc *stmtCache) getOrPrepare(prep func(string) (*sql.Stmt, error), sqlText string) (*sql.Stmt, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if stmt, ok := sc.cache.Get(sqlText); ok {
		return stmt, nil
	}
	stmt, err := prep(sqlText)
	if err != nil {
		return nil, err
	}
	sc.cache.Add(sqlText, stmt)
	return stmt, nil
}

// clear finalizes every cached statement before dropping them (spec.md
// §4.G: "cache clearing finalizes all entries before releasing").
func (sc *stmtCache) clear() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.cache.Purge()
}

func (sc *stmtCache) len() int {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.cache.Len()
}
