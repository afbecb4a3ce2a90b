// Package state provides the shared key-value store behind circuit breakers
// and the cycle lock.
//
// Three backends implement StateStore: SQLiteStore in the host database,
// the default so one-shot runs keep breaker state between processes;
// MemoryStore for daemons and tests; and NATSStore on a JetStream KV bucket
// when several engine instances must agree on breaker state.
//
// # Usage
//
//	store, _ := state.NewNATSStore(state.NATSStoreConfig{
//	    Conn:   nc,
//	    Bucket: "pulse-state",
//	})
//
//	// Sliding five minute failure window
//	n, _ := store.Incr(ctx, "breaker.idle_user.failures", 5*time.Minute)
//
//	// Self-expiring flag
//	store.Put(ctx, "breaker.idle_user.disabled_until", []byte(ts), time.Hour)
//
//	// Exclusive cycle lock
//	lock, err := store.Lock(ctx, "heartbeat.cycle", 10*time.Minute)
//	if err == state.ErrLockHeld {
//	    // another instance is running this cycle
//	}
//	defer lock.Unlock(ctx)
package state
