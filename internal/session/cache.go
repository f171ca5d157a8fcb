package session

import "sync"

// Cache holds the locally known session state: the access token and the
// identity of the signed-in user. HasActiveSession never touches the
// network; it only inspects this cache.
type Cache struct {
	mu       sync.RWMutex
	token    string
	identity string
}

func NewCache() *Cache { return &Cache{} }

func (c *Cache) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *Cache) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Cache) SetIdentity(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.identity = userID
}

func (c *Cache) Identity() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity
}

// HasActiveSession reports whether either an access token or a cached user
// identity is present.
func (c *Cache) HasActiveSession() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token != "" || c.identity != ""
}

// Clear wipes the cached session, e.g. after a failed refresh.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.identity = ""
}
