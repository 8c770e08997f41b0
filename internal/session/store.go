// ABOUTME: In-memory session store with per-session pub/sub event channels
// ABOUTME: Validates tokens, publishes events in order, and sweeps idle sessions

package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/uta-gateway/internal/bridge"
)

const (
	// DefaultBufferSize is the channel buffer for each subscriber. Events
	// beyond it wait in the subscriber's queue.
	DefaultBufferSize = 256

	// DefaultSweepInterval is used when an idle timeout is set without an interval.
	DefaultSweepInterval = time.Minute
)

// Config configures a Store.
type Config struct {
	// BufferSize is the per-subscriber channel buffer. Zero means DefaultBufferSize.
	// It bounds the channel only: undelivered events are queued, never dropped.
	BufferSize int

	// IdleTimeout enables the idle sweep when positive.
	IdleTimeout   time.Duration
	SweepInterval time.Duration

	// Mirror receives session changes. Optional.
	Mirror Mirror

	// Now overrides the clock in tests.
	Now func() time.Time
}

// record is the mutable state of one session. Fields below mu are guarded by it.
type record struct {
	id             string
	userID         string
	conversationID string
	digest         tokenDigest
	createdAt      time.Time
	metadata       map[string]any

	mu         sync.Mutex
	adapter    string
	lastActive time.Time
	subs       map[string]*subscriber
	closed     bool
}

// snapshot must be called with r.mu held.
func (r *record) snapshot() Session {
	return Session{
		ID:             r.id,
		UserID:         r.userID,
		Adapter:        r.adapter,
		ConversationID: r.conversationID,
		CreatedAt:      r.createdAt,
		LastActive:     r.lastActive,
		Metadata:       cloneMetadata(r.metadata),
	}
}

// close finishes all subscribers: each channel closes after its queued
// events are delivered. Safe to call more than once.
func (r *record) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for subID, sub := range r.subs {
		sub.finish()
		delete(r.subs, subID)
	}
}

// Store owns all session records. There is no lock across sessions:
// the store lock only guards the id map.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*record
	closed   bool

	bufferSize  int
	idleTimeout time.Duration
	mirror      Mirror
	now         func() time.Time
	logger      *slog.Logger

	// unknownDigest is compared against for unknown ids.
	unknownDigest tokenDigest

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a store and starts the idle sweeper when configured.
// Pass nil logger for default.
func New(cfg Config, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		sessions:      make(map[string]*record),
		bufferSize:    cfg.BufferSize,
		idleTimeout:   cfg.IdleTimeout,
		mirror:        cfg.Mirror,
		now:           cfg.Now,
		logger:        logger.With("component", "sessions"),
		unknownDigest: digestToken(uuid.New().String()),
		cancel:        cancel,
	}

	if cfg.IdleTimeout > 0 {
		interval := cfg.SweepInterval
		if interval <= 0 {
			interval = DefaultSweepInterval
		}
		s.wg.Add(1)
		go s.sweepLoop(ctx, interval)
	}

	return s
}

// Create registers a new session. The returned value is the only one that
// ever carries the plaintext token.
func (s *Store) Create(userID, adapterID string, metadata map[string]any) (*Session, error) {
	token, digest, err := generateToken()
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	r := &record{
		id:             uuid.New().String(),
		userID:         userID,
		conversationID: uuid.New().String(),
		digest:         digest,
		createdAt:      now,
		metadata:       cloneMetadata(metadata),
		adapter:        adapterID,
		lastActive:     now,
		subs:           make(map[string]*subscriber),
	}

	s.mu.Lock()
	s.sessions[r.id] = r
	s.mu.Unlock()

	r.mu.Lock()
	sess := r.snapshot()
	r.mu.Unlock()

	s.logger.Info("session created",
		"session_id", sess.ID,
		"user_id", userID,
		"adapter", adapterID)
	s.mirrorUpsert(sess)

	sess.Token = token
	return &sess, nil
}

// Validate returns the session only if token matches its stored token.
// Unknown ids and wrong tokens both return ErrNotFound.
func (s *Store) Validate(id, token string) (*Session, error) {
	presented := digestToken(token)

	r := s.lookup(id)
	if r == nil {
		s.unknownDigest.matches(presented)
		return nil, ErrNotFound
	}
	if !r.digest.matches(presented) {
		return nil, ErrNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrNotFound
	}
	sess := r.snapshot()
	return &sess, nil
}

// Get returns a copy of the session without checking a token.
func (s *Store) Get(id string) (*Session, error) {
	r := s.lookup(id)
	if r == nil {
		return nil, ErrNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrNotFound
	}
	sess := r.snapshot()
	return &sess, nil
}

// Emit publishes event to every subscriber of the session and refreshes its
// last activity. It never blocks: events a subscriber has not read yet are
// queued for it. Returns false if the session does not exist.
func (s *Store) Emit(id string, event bridge.Event) bool {
	r := s.lookup(id)
	if r == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}

	r.lastActive = s.now().UTC()
	for _, sub := range r.subs {
		sub.push(event)
	}
	return true
}

// UpdateAdapter rebinds the session to adapterID. No-op for unknown sessions.
// The mirror is notified under the session lock so concurrent rebinds reach
// it in the order they were applied.
func (s *Store) UpdateAdapter(id, adapterID string) {
	r := s.lookup(id)
	if r == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.adapter == adapterID {
		return
	}
	previous := r.adapter
	r.adapter = adapterID
	s.mirrorUpsert(r.snapshot())

	s.logger.Info("session adapter changed",
		"session_id", id,
		"from", previous,
		"to", adapterID)
}

// ListActive returns a summary of every live session, most recently active first.
func (s *Store) ListActive() []Summary {
	s.mu.RLock()
	records := make([]*record, 0, len(s.sessions))
	for _, r := range s.sessions {
		records = append(records, r)
	}
	s.mu.RUnlock()

	out := make([]Summary, 0, len(records))
	for _, r := range records {
		r.mu.Lock()
		if !r.closed {
			out = append(out, Summary{
				ID:          r.id,
				UserID:      r.userID,
				Adapter:     r.adapter,
				LastActive:  r.lastActive,
				Subscribers: len(r.subs),
			})
		}
		r.mu.Unlock()
	}

	sortSummaries(out)
	return out
}

// Count returns the number of live sessions.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Delete removes the session and closes its subscriber channels.
// Deleting an unknown session is a no-op.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	r, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	if !ok {
		return
	}

	r.close()
	s.logger.Info("session deleted", "session_id", id)
	s.mirrorDelete(id)
}

// Subscribe attaches a new subscriber to the session's channel. The returned
// function detaches it and is safe to call more than once. The subscription
// is also removed when ctx is cancelled. The channel is closed when the
// subscriber is detached, or after the remaining events are delivered when
// the session is deleted.
func (s *Store) Subscribe(ctx context.Context, id string) (<-chan bridge.Event, func(), error) {
	s.mu.RLock()
	closed := s.closed
	r := s.sessions[id]
	s.mu.RUnlock()
	if closed {
		return nil, nil, ErrClosed
	}
	if r == nil {
		return nil, nil, ErrNotFound
	}

	subID := uuid.New().String()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, nil, ErrNotFound
	}
	sub := newSubscriber(s.bufferSize)
	r.subs[subID] = sub
	r.mu.Unlock()

	s.logger.Debug("subscriber added", "session_id", id, "sub_id", subID)

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs, subID)
			r.mu.Unlock()
			sub.detach()
			s.logger.Debug("subscriber removed", "session_id", id, "sub_id", subID)
		})
	}

	// Auto-cleanup on context cancellation. After the session closes the
	// pump may still be delivering, so this waits for it to exit.
	go func() {
		select {
		case <-ctx.Done():
			unsubscribe()
		case <-sub.exited:
		}
	}()

	return sub.out, unsubscribe, nil
}

// Close stops the sweeper and detaches every subscriber. Sessions are not
// mirrored as deleted: the mirror keeps them until their TTL expires.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	records := make([]*record, 0, len(s.sessions))
	for id, r := range s.sessions {
		records = append(records, r)
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()

	for _, r := range records {
		r.close()
	}
	s.logger.Debug("session store closed", "sessions", len(records))
}

func (s *Store) lookup(id string) *record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[id]
}

func (s *Store) mirrorUpsert(sess Session) {
	if s.mirror != nil {
		s.mirror.SessionUpserted(sess)
	}
}

func (s *Store) mirrorDelete(id string) {
	if s.mirror != nil {
		s.mirror.SessionDeleted(id)
	}
}
