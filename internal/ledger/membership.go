package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/mmynk/sharedledger/internal/models"
)

// MembershipDirectory answers which participants belong to a group.
type MembershipDirectory interface {
	MembersOf(ctx context.Context, groupID string) ([]string, error)
}

// CachedDirectory keeps membership lookups in memory for a short TTL.
// Membership can change from another process while an entry is cached:
// lookups that miss a participant reload the group before rejecting, and
// writes check members again through the transaction they commit in.
type CachedDirectory struct {
	next  MembershipDirectory
	cache *cache.Cache
}

// NewCachedDirectory wraps next with a TTL cache.
func NewCachedDirectory(next MembershipDirectory, ttl time.Duration) *CachedDirectory {
	return &CachedDirectory{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
	}
}

func (c *CachedDirectory) MembersOf(ctx context.Context, groupID string) ([]string, error) {
	if v, ok := c.cache.Get(groupID); ok {
		return v.([]string), nil
	}
	members, err := c.next.MembersOf(ctx, groupID)
	if err != nil {
		return nil, err
	}
	c.cache.Set(groupID, members, cache.DefaultExpiration)
	return members, nil
}

// Invalidate drops the cached members of one group.
func (c *CachedDirectory) Invalidate(groupID string) {
	c.cache.Delete(groupID)
}

// Refresh reloads the members of one group from the wrapped directory.
func (c *CachedDirectory) Refresh(ctx context.Context, groupID string) ([]string, error) {
	c.cache.Delete(groupID)
	return c.MembersOf(ctx, groupID)
}

type refresher interface {
	Refresh(ctx context.Context, groupID string) ([]string, error)
}

// requireMembers fails with ErrParticipantNotInGroup unless every id is a
// current member of the group. A cached list that lacks someone is reloaded
// once before rejecting, so people who just joined are accepted.
func requireMembers(ctx context.Context, dir MembershipDirectory, groupID string, ids ...string) error {
	members, err := dir.MembersOf(ctx, groupID)
	if err != nil {
		return err
	}
	missing := firstMissing(members, ids)
	if missing == "" {
		return nil
	}
	if r, ok := dir.(refresher); ok {
		if members, err = r.Refresh(ctx, groupID); err != nil {
			return err
		}
		missing = firstMissing(members, ids)
	}
	if missing != "" {
		return fmt.Errorf("%w: %s is not in group %s", models.ErrParticipantNotInGroup, missing, groupID)
	}
	return nil
}

func firstMissing(members, ids []string) string {
	set := make(map[string]struct{}, len(members))
	for _, m := range members {
		set[m] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := set[id]; !ok {
			return id
		}
	}
	return ""
}
