package cluster

import (
	"fmt"
	"sync"
	"time"

	"github.com/printworks/relay/internal/supplier"
)

// A parked document that outlives this is dropped; the supplier re-offers
// it and the router routes it again against the current liveness table.
const parkedTTL = time.Hour

// CachedDocument is a downloaded document parked for retrieval by a sibling
// cluster node over the proxy transport. The full supplier metadata rides
// along so the picking node can allocate, chunk and dispatch it.
type CachedDocument struct {
	Account  string
	Node     string
	Document supplier.Document
	Payload  []byte
	CachedAt time.Time
}

// ParkedDocument is the wire form a cached document is served in when a
// sibling picks it up.
type ParkedDocument struct {
	Document supplier.Document `json:"document"`
	Payload  []byte            `json:"payload"`
}

// ProxyCache holds documents awaiting pickup by their target node.
type ProxyCache struct {
	mu   sync.Mutex
	docs map[string]*CachedDocument
	ttl  time.Duration
}

func NewProxyCache() *ProxyCache {
	return &ProxyCache{
		docs: make(map[string]*CachedDocument),
		ttl:  parkedTTL,
	}
}

func cacheKey(account, node, documentID string) string {
	return fmt.Sprintf("%s/%s/%s", account, node, documentID)
}

func (c *ProxyCache) Put(account, node string, doc *supplier.Document, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pruneLocked()
	c.docs[cacheKey(account, node, doc.ID)] = &CachedDocument{
		Account:  account,
		Node:     node,
		Document: *doc,
		Payload:  payload,
		CachedAt: time.Now(),
	}
}

// Take removes and returns one cached document for the given peer, or nil
// when nothing is waiting.
func (c *ProxyCache) Take(account, node string) *CachedDocument {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pruneLocked()
	for key, doc := range c.docs {
		if doc.Account == account && doc.Node == node {
			delete(c.docs, key)
			return doc
		}
	}
	return nil
}

func (c *ProxyCache) pruneLocked() {
	cutoff := time.Now().Add(-c.ttl)
	for key, doc := range c.docs {
		if doc.CachedAt.Before(cutoff) {
			delete(c.docs, key)
		}
	}
}

func (c *ProxyCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.docs)
}
