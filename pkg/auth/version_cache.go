package auth

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// UserState is the part of a user record that decides whether a session is still valid
type UserState struct {
	SessionVersion int64
	IsActive       bool
}

// VersionCache remembers UserState per user for a short TTL so that not every
// request reads the users collection
type VersionCache struct {
	lru *expirable.LRU[string, UserState]
}

// NewVersionCache creates a cache holding up to size users for ttl
func NewVersionCache(size int, ttl time.Duration) *VersionCache {
	if size <= 0 {
		size = 10000
	}
	return &VersionCache{lru: expirable.NewLRU[string, UserState](size, nil, ttl)}
}

func (c *VersionCache) Get(userID string) (UserState, bool) {
	return c.lru.Get(userID)
}

func (c *VersionCache) Put(userID string, state UserState) {
	c.lru.Add(userID, state)
}

// Invalidate must be called after every sessionVersion increment
func (c *VersionCache) Invalidate(userID string) {
	c.lru.Remove(userID)
}
