package auth

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// maxTrackedNonces 限制同时记住的 nonce 数量。
const maxTrackedNonces = 100_000

type nonceKey struct {
	signer common.Address
	nonce  string
}

// nonceCache 记录签名窗口内已使用的 (signer, nonce)。
// 条目在对应时间戳离开允许偏差后过期。
type nonceCache struct {
	mu       sync.Mutex
	seen     map[nonceKey]time.Time
	capacity int
}

func newNonceCache(capacity int) *nonceCache {
	return &nonceCache{seen: make(map[nonceKey]time.Time), capacity: capacity}
}

// use 登记 nonce，已被使用或缓存已满时返回 false。
func (c *nonceCache) use(signer common.Address, nonce string, expires, now time.Time) bool {
	key := nonceKey{signer: signer, nonce: nonce}

	c.mu.Lock()
	defer c.mu.Unlock()

	if exp, ok := c.seen[key]; ok && now.Before(exp) {
		return false
	}
	if len(c.seen) >= c.capacity {
		c.evict(now)
		if len(c.seen) >= c.capacity {
			return false
		}
	}
	c.seen[key] = expires
	return true
}

func (c *nonceCache) evict(now time.Time) {
	for key, exp := range c.seen {
		if !now.Before(exp) {
			delete(c.seen, key)
		}
	}
}

func (c *nonceCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}
