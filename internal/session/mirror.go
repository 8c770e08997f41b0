// ABOUTME: Session mirror interface and a Redis implementation
// ABOUTME: Writes session JSON under uta:session:<id> with a TTL from a background worker

package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Mirror receives copies of session changes. Implementations must not block.
type Mirror interface {
	SessionUpserted(sess Session)
	SessionDeleted(id string)
}

const (
	// Redis key prefix for mirrored sessions
	mirrorKeyPrefix = "uta:session:"
	// Default TTL for mirrored session keys (24 hours)
	defaultMirrorTTL = 24 * time.Hour
	// mirrorQueueSize bounds pending mirror writes
	mirrorQueueSize = 1024
	// mirrorOpTimeout bounds a single Redis call
	mirrorOpTimeout = 2 * time.Second
)

type mirrorOp struct {
	id     string
	value  []byte
	delete bool
}

// RedisMirror writes session snapshots to Redis. Writes are applied in order
// by a single worker; when the queue is full new writes are dropped.
type RedisMirror struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger

	ops       chan mirrorOp
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// NewRedisMirror starts a mirror worker on client. Pass nil logger for default.
func NewRedisMirror(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisMirror {
	if ttl <= 0 {
		ttl = defaultMirrorTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &RedisMirror{
		client: client,
		ttl:    ttl,
		logger: logger.With("component", "session_mirror"),
		ops:    make(chan mirrorOp, mirrorQueueSize),
		done:   make(chan struct{}),
	}
	go m.run()
	return m
}

// SessionUpserted implements Mirror.
func (m *RedisMirror) SessionUpserted(sess Session) {
	sess.Token = ""
	val, err := json.Marshal(sess)
	if err != nil {
		m.logger.Warn("failed to encode session for mirror", "session_id", sess.ID, "error", err)
		return
	}
	m.enqueue(mirrorOp{id: sess.ID, value: val})
}

// SessionDeleted implements Mirror.
func (m *RedisMirror) SessionDeleted(id string) {
	m.enqueue(mirrorOp{id: id, delete: true})
}

func (m *RedisMirror) enqueue(op mirrorOp) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return
	}
	select {
	case m.ops <- op:
	default:
		m.logger.Warn("mirror queue full, dropping write", "session_id", op.id)
	}
}

func (m *RedisMirror) run() {
	defer close(m.done)
	for op := range m.ops {
		m.apply(op)
	}
}

func (m *RedisMirror) apply(op mirrorOp) {
	ctx, cancel := context.WithTimeout(context.Background(), mirrorOpTimeout)
	defer cancel()

	var err error
	if op.delete {
		err = m.client.Del(ctx, m.key(op.id)).Err()
	} else {
		err = m.client.Set(ctx, m.key(op.id), op.value, m.ttl).Err()
	}
	if err != nil {
		m.logger.Warn("session mirror write failed",
			"session_id", op.id,
			"delete", op.delete,
			"error", err)
	}
}

// Close drains pending writes and closes the Redis client.
func (m *RedisMirror) Close() error {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		close(m.ops)
		m.mu.Unlock()
	})
	<-m.done
	return m.client.Close()
}

// key constructs the Redis key for a session ID.
func (m *RedisMirror) key(id string) string {
	return mirrorKeyPrefix + id
}
