package depth

import (
	"context"
	"sync"
	"time"

	"github.com/svyatogor45/radar-arb/internal/exchange"
	"github.com/svyatogor45/radar-arb/internal/models"
)

// PartialBookCache holds the most recent partial order book per symbol,
// fed by one or more WS subscriptions, and serves lookups without blocking
// on any I/O. Grounded on internal/exchange/ws_reconnect.go's
// WSReconnectManager, which owns the actual reconnect/backoff machinery;
// this cache only tracks the last decoded snapshot per symbol and its age.
type PartialBookCache struct {
	mu    sync.RWMutex
	books map[string]cachedBook
}

type cachedBook struct {
	book    models.OrderBook
	updated time.Time
}

// NewPartialBookCache builds an empty cache.
func NewPartialBookCache() *PartialBookCache {
	return &PartialBookCache{books: make(map[string]cachedBook)}
}

// Update stores the latest decoded book for symbol. Called from a WS
// manager's OnMessage handler once the venue-specific payload has been
// parsed into models.OrderBook.
func (c *PartialBookCache) Update(symbol string, book models.OrderBook, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.books[symbol] = cachedBook{book: book, updated: now}
}

// Last returns the cached book for symbol if it is no older than maxAge.
func (c *PartialBookCache) Last(symbol string, maxAge time.Duration, now time.Time) (models.OrderBook, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cb, ok := c.books[symbol]
	if !ok || now.Sub(cb.updated) > maxAge {
		return models.OrderBook{}, false
	}
	return cb.book, true
}

// RESTFetcher fetches a fresh order book snapshot over REST, e.g. via an
// exchange.Adapter's FetchOrderBook.
type RESTFetcher func(ctx context.Context, symbol string, limit int) (models.OrderBook, error)

// CachedSource is a BookSource that prefers the WS partial-book cache and
// falls back to REST when the cached snapshot is missing or stale,
// matching the "use_ws with REST fallback" policy of the original
// revalidator.
type CachedSource struct {
	Cache  *PartialBookCache
	MaxAge time.Duration
	REST   RESTFetcher
	Now    func() time.Time
}

// OrderBook implements BookSource.
func (s *CachedSource) OrderBook(ctx context.Context, symbol string, limit int) (models.OrderBook, bool, bool) {
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	if s.Cache != nil {
		if book, ok := s.Cache.Last(symbol, s.MaxAge, now); ok {
			return book, true, true
		}
	}
	if s.REST == nil {
		return models.OrderBook{}, false, false
	}
	book, err := s.REST(ctx, symbol, limit)
	if err != nil {
		return models.OrderBook{}, false, false
	}
	return book, false, true
}

// ParseFunc decodes one raw WS message into a symbol and its order book
// snapshot. Venue-specific: each adapter supplies its own, matching the
// payload shape of that exchange's depth stream.
type ParseFunc func(raw []byte) (symbol string, book models.OrderBook, ok bool)

// BookFeed wires a WSReconnectManager's message stream into a
// PartialBookCache via a venue-specific ParseFunc.
type BookFeed struct {
	mgr   *exchange.WSReconnectManager
	cache *PartialBookCache
	parse ParseFunc
}

// NewBookFeed starts no connection by itself; call Connect to dial.
func NewBookFeed(exchangeName, wsURL string, cfg exchange.WSReconnectConfig, cache *PartialBookCache, parse ParseFunc) *BookFeed {
	f := &BookFeed{
		mgr:   exchange.NewWSReconnectManager(exchangeName, wsURL, cfg),
		cache: cache,
		parse: parse,
	}
	f.mgr.SetOnMessage(func(raw []byte) {
		symbol, book, ok := f.parse(raw)
		if !ok {
			return
		}
		f.cache.Update(symbol, book, time.Now())
	})
	return f
}

// Subscribe queues a venue-native subscription message to send/replay on
// (re)connect.
func (f *BookFeed) Subscribe(sub interface{}) {
	f.mgr.AddSubscription(sub)
}

// Connect dials the WS endpoint and starts the reconnect loop.
func (f *BookFeed) Connect() error {
	return f.mgr.Connect()
}

// Close tears down the WS connection.
func (f *BookFeed) Close() error {
	return f.mgr.Close()
}

// IsConnected reports whether the underlying WS connection is currently up.
func (f *BookFeed) IsConnected() bool {
	return f.mgr.IsConnected()
}
