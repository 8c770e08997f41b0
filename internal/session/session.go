// ABOUTME: Session snapshot types, sentinel errors and token helpers
// ABOUTME: Tokens are random base64url strings stored only as BLAKE2b-256 digests

package session

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

// ErrNotFound is returned for unknown sessions and for wrong tokens alike.
var ErrNotFound = errors.New("session not found")

// ErrClosed is returned by Subscribe after the store has been closed.
var ErrClosed = errors.New("session store closed")

// tokenBytes is the amount of randomness in a session token.
const tokenBytes = 32

// Session is a read-only copy of a session record.
// Token is only populated on the value returned by Create.
type Session struct {
	ID             string         `json:"sessionId"`
	Token          string         `json:"-"`
	UserID         string         `json:"userId"`
	Adapter        string         `json:"adapter"`
	ConversationID string         `json:"conversationId"`
	CreatedAt      time.Time      `json:"createdAt"`
	LastActive     time.Time      `json:"lastActive"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Summary is the diagnostic view used by heartbeat listings.
type Summary struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Adapter     string    `json:"adapter"`
	LastActive  time.Time `json:"lastActive"`
	Subscribers int       `json:"subscribers"`
}

type tokenDigest [blake2b.Size256]byte

// generateToken returns a new plaintext token and its digest.
func generateToken() (string, tokenDigest, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", tokenDigest{}, fmt.Errorf("generating session token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)
	return token, digestToken(token), nil
}

func digestToken(token string) tokenDigest {
	return blake2b.Sum256([]byte(token))
}

// matches compares digests in constant time.
func (d tokenDigest) matches(other tokenDigest) bool {
	return subtle.ConstantTimeCompare(d[:], other[:]) == 1
}

func cloneMetadata(m map[string]any) map[string]any {
	if len(m) == 0 {
		return nil
	}
	return maps.Clone(m)
}

// sortSummaries orders by last activity, newest first, then by id.
func sortSummaries(out []Summary) {
	slices.SortFunc(out, func(a, b Summary) int {
		if c := b.LastActive.Compare(a.LastActive); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
