// Package registry maps user ids to live interview sessions.
//
// Stores are injected where needed and never held in package state. A miss,
// including an expired entry, is domain.ErrSessionNotFound.
package registry

import (
	"context"

	"github.com/fairyhunter13/ai-mock-interviewer/internal/interview"
)

// Store holds at most one session per user.
type Store interface {
	// Put inserts or replaces the user's session and refreshes its TTL.
	Put(ctx context.Context, userID string, s *interview.Session) error
	// Get returns the user's session or domain.ErrSessionNotFound.
	Get(ctx context.Context, userID string) (*interview.Session, error)
	// Delete drops the user's session. Deleting a missing entry is not an error.
	Delete(ctx context.Context, userID string) error
	// Len reports the number of live sessions.
	Len() int
}

// Locker is implemented by stores shared between processes. Lock holds the
// user's session exclusively until the returned release func is called.
type Locker interface {
	Lock(ctx context.Context, userID string) (release func(), err error)
}
