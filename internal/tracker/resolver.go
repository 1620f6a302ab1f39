package tracker

import (
	"context"

	"github.com/its-the-vibe/JiraBolt/internal/logger"
	"github.com/its-the-vibe/JiraBolt/internal/slackapi"
)

// UserDirectory is the cached chat roster.
type UserDirectory interface {
	Get(ctx context.Context, id string) (slackapi.UserInfo, bool)
}

// UserLookup fetches one chat user directly, bypassing the cache.
type UserLookup interface {
	LookupUser(ctx context.Context, id string) (slackapi.UserInfo, error)
}

// AccountFinder finds a tracker account id by email.
type AccountFinder interface {
	FindAccountID(ctx context.Context, email string) (string, error)
}

// IdentityMap covers chat accounts without an organisational email, such as
// bots. Default is used when neither the email nor Overrides resolve.
type IdentityMap struct {
	Overrides map[string]string
	Default   string
}

// Resolver maps chat user ids to tracker account ids.
type Resolver struct {
	roster UserDirectory
	lookup UserLookup
	finder AccountFinder
	ids    IdentityMap
}

func NewResolver(roster UserDirectory, lookup UserLookup, finder AccountFinder, ids IdentityMap) *Resolver {
	return &Resolver{roster: roster, lookup: lookup, finder: finder, ids: ids}
}

// Resolve returns the reporter (thread author) and assignee (reaction author).
func (r *Resolver) Resolve(ctx context.Context, reporterChatID, assigneeChatID string) Participants {
	return Participants{
		ReporterID: r.AccountFor(ctx, reporterChatID),
		AssigneeID: r.AccountFor(ctx, assigneeChatID),
	}
}

// AccountFor resolves one chat user. It never fails: lookups that error are
// logged and fall through to the identity map.
func (r *Resolver) AccountFor(ctx context.Context, chatID string) string {
	if email := r.email(ctx, chatID); email != "" {
		id, err := r.finder.FindAccountID(ctx, email)
		if err != nil {
			logger.Warn("Jira user search for %s failed: %v", chatID, err)
		} else if id != "" {
			return id
		}
	}

	if id, ok := r.ids.Overrides[chatID]; ok {
		return id
	}
	logger.Debug("No Jira account for %s, using default account", chatID)
	return r.ids.Default
}

func (r *Resolver) email(ctx context.Context, chatID string) string {
	if chatID == "" {
		return ""
	}
	if u, ok := r.roster.Get(ctx, chatID); ok && u.Email != "" {
		return u.Email
	}
	u, err := r.lookup.LookupUser(ctx, chatID)
	if err != nil {
		logger.Warn("Looking up chat user %s failed: %v", chatID, err)
		return ""
	}
	return u.Email
}
