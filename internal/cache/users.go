// Package cache holds Discord users fetched during this process's lifetime.
package cache

import (
	"sync"

	"discord-auth/internal/discord"
)

// Users maps a subject ID to the last successfully fetched record for it.
// It is shared by every session in the process. Writes are last-write-wins.
type Users struct {
	mu    sync.RWMutex
	users map[discord.Snowflake]*discord.User
}

func NewUsers() *Users {
	return &Users{users: make(map[discord.Snowflake]*discord.User)}
}

func (c *Users) Get(id discord.Snowflake) (*discord.User, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	u, ok := c.users[id]
	return u, ok
}

// Put stores u under its own ID, replacing any previous record.
func (c *Users) Put(u *discord.User) {
	if u == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.users[u.ID] = u
}

func (c *Users) Invalidate(id discord.Snowflake) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.users, id)
}

// Update replaces the cached record for id with fn(current). It does
// nothing when id is not cached, so a list fetched after a logout cannot
// resurrect the entry.
func (c *Users) Update(id discord.Snowflake, fn func(*discord.User) *discord.User) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	u, ok := c.users[id]
	if !ok {
		return false
	}
	c.users[id] = fn(u)
	return true
}

func (c *Users) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.users)
}

func (c *Users) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	clear(c.users)
}
