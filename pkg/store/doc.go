// Package store provides Redis-backed persistence for state that must outlive
// a single process: upload sessions and delta links.
//
// Values are stored as JSON envelopes together with an optional expiry; Redis
// removes them once expired.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	manager := store.NewManager(redisClient)
//
//	key := store.Key{Namespace: store.NamespaceUploadSession, ID: "report.pdf"}
//	if err := manager.Set(ctx, key, session, session.ExpirationDateTime); err != nil {
//		return err
//	}
//
//	var loaded upload.Session
//	err := manager.Get(ctx, key, &loaded)
//	if errors.Is(err, store.ErrNotFound) {
//		// start a new session
//	}
//
// # Delta Links
//
//	// Persist the delta link reached by a page iterator
//	err := manager.SaveDeltaLink(ctx, "users", deltaLink)
//
//	// Later, continue from it
//	link, err := manager.LoadDeltaLink(ctx, "users")
//
// # Metrics
//
//   - graphcore_store_hits_total{namespace} - Successful reads
//   - graphcore_store_misses_total{namespace} - Missing or expired keys
//   - graphcore_store_errors_total{operation} - Redis or encoding failures
package store
