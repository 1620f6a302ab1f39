package slackapi

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/its-the-vibe/JiraBolt/internal/logger"
)

// UserInfo is the subset of a workspace member the bot cares about.
type UserInfo struct {
	ID          string
	DisplayName string
	Email       string
}

// UserLister fetches the full workspace roster.
type UserLister interface {
	ListUsers(ctx context.Context) ([]UserInfo, error)
}

// Roster is a read-mostly cache of the workspace roster. The whole roster is
// reloaded once it is older than the TTL or after Invalidate.
type Roster struct {
	lister UserLister
	ttl    time.Duration
	now    func() time.Time

	mu       sync.RWMutex
	users    map[string]UserInfo
	loadedAt time.Time
	valid    bool

	group singleflight.Group
}

func NewRoster(lister UserLister, ttl time.Duration) *Roster {
	return &Roster{
		lister: lister,
		ttl:    ttl,
		now:    time.Now,
		users:  map[string]UserInfo{},
	}
}

// Get returns the cached entry for a user id, reloading the roster first when
// it has expired. A failed reload keeps serving the previous snapshot.
func (r *Roster) Get(ctx context.Context, id string) (UserInfo, bool) {
	if r.expired() {
		if err := r.RefreshAll(ctx); err != nil {
			logger.Warn("Roster refresh failed, serving stale entries: %v", err)
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	return u, ok
}

// RefreshAll reloads the whole roster. Concurrent callers share one request.
func (r *Roster) RefreshAll(ctx context.Context) error {
	_, err, _ := r.group.Do("refresh", func() (any, error) {
		users, err := r.lister.ListUsers(ctx)
		if err != nil {
			return nil, err
		}
		byID := make(map[string]UserInfo, len(users))
		for _, u := range users {
			byID[u.ID] = u
		}

		r.mu.Lock()
		r.users = byID
		r.loadedAt = r.now()
		r.valid = true
		r.mu.Unlock()

		logger.Debug("Roster refreshed with %d users", len(byID))
		return nil, nil
	})
	return err
}

// Invalidate forces the next Get to reload the roster.
func (r *Roster) Invalidate() {
	r.mu.Lock()
	r.valid = false
	r.mu.Unlock()
}

// Len reports the number of cached users.
func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

func (r *Roster) expired() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.valid {
		return true
	}
	return r.ttl > 0 && r.now().Sub(r.loadedAt) >= r.ttl
}
