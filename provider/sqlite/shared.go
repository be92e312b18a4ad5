package sqlite

import (
	"context"
	"sync"
)

// sharedName keeps the shared database apart from other in-memory SQLite
// users in the process.
const sharedName = "appcache_memory"

var (
	sharedOnce  sync.Once
	sharedStore *Store
	sharedErr   error
)

// Shared returns a process-wide store on a named in-memory database,
// created on first use with default settings. It is opt-in: Open never
// returns it. Close on the shared store is a no-op so one owner cannot pull
// it from under the others.
func Shared() (*Store, error) {
	sharedOnce.Do(func() {
		db, err := openMemory(sharedName)
		if err != nil {
			sharedErr = err
			return
		}
		sharedStore, sharedErr = Open(context.Background(), Config{DB: db})
	})
	return sharedStore, sharedErr
}
