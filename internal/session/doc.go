// Package session implements the session store of uta-gateway.
//
// # Overview
//
// A Session binds one caller to one conversation and to the adapter that
// currently serves it. The Store owns every session record; callers only
// ever see copies.
//
// # Tokens
//
// Create returns the plaintext session token exactly once. The store keeps
// a BLAKE2b-256 digest and compares digests in constant time, so a wrong
// token and an unknown session id both yield ErrNotFound after the same
// amount of work.
//
// # Event Channel
//
// Each session has a private publish/subscribe point:
//
//	events, unsubscribe, err := store.Subscribe(ctx, id)
//	defer unsubscribe()
//	for ev := range events {
//	    // write ev to the client
//	}
//
// Emit never blocks. Each subscriber has its own queue, drained into its
// channel by a pump goroutine, so a slow reader falls behind without
// losing events or holding up the others. Publishing happens under the
// session's lock, so every subscriber sees events in emission order.
// Delete closes each channel once its queued events are delivered, which
// ends the range loop above.
//
// # Idle Sweep
//
// With Config.IdleTimeout set, a background goroutine deletes sessions
// whose last activity is older than the timeout and which have no
// subscribers. Without it sessions live until deleted explicitly.
//
// # Mirror
//
// A Mirror receives a copy of every session create, adapter change and
// delete. RedisMirror writes them to Redis for external dashboards. The
// token is never mirrored.
package session
