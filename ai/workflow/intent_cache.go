package workflow

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"time"

	"github.com/gradmall/mallchat/ai/cache"
)

const (
	intentCacheCapacity = 1000
	intentCacheTTL      = 30 * time.Minute
)

type intentCacheEntry struct {
	Intent     Intent
	Confidence float64
}

// intentCache 按归一化消息的 MD5 缓存 LLM 意图判定,
// 重复问法直接短路, 省掉一次分类调用.
type intentCache struct {
	lru *cache.LRUCache[string, intentCacheEntry]
}

func newIntentCache() *intentCache {
	return &intentCache{
		lru: cache.NewLRUCache[string, intentCacheEntry](intentCacheCapacity, intentCacheTTL),
	}
}

func (c *intentCache) key(message string) string {
	normalized := strings.ToLower(strings.TrimSpace(message))
	sum := md5.Sum([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

func (c *intentCache) Get(message string) (Intent, float64, bool) {
	entry, ok := c.lru.Get(c.key(message))
	if !ok {
		return "", 0, false
	}
	return entry.Intent, entry.Confidence, true
}

func (c *intentCache) Set(message string, intent Intent, confidence float64) {
	c.lru.SetWithDefaultTTL(c.key(message), intentCacheEntry{
		Intent:     intent,
		Confidence: confidence,
	})
}
