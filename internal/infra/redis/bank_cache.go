package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"quiz-live-service/internal/domain"
)

// BankLoader fetches item banks from a backing store (e.g., Postgres).
type BankLoader interface {
	LoadBank(ctx context.Context, bankID string) (domain.ItemBank, error)
}

// localBankTTL bounds how long an instance serves its decoded copy without asking Redis.
const localBankTTL = 15 * time.Second

// BankCache keeps item banks in Redis as JSON (SET quiz:bank:{id}) and falls back to a loader
// on cache miss. Instances share the cached copy and each keeps a decoded one for at most
// localBankTTL.
type BankCache struct {
	client *redis.Client
	loader BankLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand

	localMu sync.RWMutex
	local   map[string]localBank
}

type localBank struct {
	bank      domain.ItemBank
	expiresAt time.Time
}

func NewBankCache(client *redis.Client, loader BankLoader, ttl time.Duration) *BankCache {
	return &BankCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		local:  make(map[string]localBank),
	}
}

func (c *BankCache) GetBank(ctx context.Context, bankID string) (domain.ItemBank, error) {
	if bank, ok := c.fromLocal(bankID); ok {
		return bank, nil
	}
	if bank, ok := c.cached(ctx, bankID); ok {
		c.keep(bankID, bank)
		return bank, nil
	}

	result, err, _ := c.sf.Do(bankID, func() (interface{}, error) {
		// Re-check cache in case another caller filled it.
		if bank, ok := c.cached(ctx, bankID); ok {
			return bank, nil
		}
		bank, err := c.loader.LoadBank(ctx, bankID)
		if err != nil {
			return domain.ItemBank{}, err
		}
		for i := range bank.Questions {
			bank.Questions[i].EnsureID()
		}
		if raw, err := json.Marshal(bank); err == nil {
			_ = c.client.Set(ctx, bankKey(bankID), raw, c.ttlWithJitter()).Err()
		}
		c.keep(bankID, bank)
		return bank, nil
	})
	if err != nil {
		return domain.ItemBank{}, err
	}
	return result.(domain.ItemBank), nil
}

// Invalidate drops the shared copy and this instance's local one, e.g. after an import.
// Peers pick up the change once their local copy expires.
func (c *BankCache) Invalidate(ctx context.Context, bankID string) error {
	c.localMu.Lock()
	delete(c.local, bankID)
	c.localMu.Unlock()
	return c.client.Del(ctx, bankKey(bankID)).Err()
}

func (c *BankCache) fromLocal(bankID string) (domain.ItemBank, bool) {
	now := c.clock()
	c.localMu.RLock()
	defer c.localMu.RUnlock()
	entry, ok := c.local[bankID]
	if !ok || !entry.expiresAt.After(now) {
		return domain.ItemBank{}, false
	}
	return entry.bank, true
}

func (c *BankCache) keep(bankID string, bank domain.ItemBank) {
	ttl := localBankTTL
	if c.ttl > 0 && c.ttl < ttl {
		ttl = c.ttl
	}
	expiresAt := c.clock().Add(ttl)
	c.localMu.Lock()
	c.local[bankID] = localBank{bank: bank, expiresAt: expiresAt}
	c.localMu.Unlock()
}

func (c *BankCache) cached(ctx context.Context, bankID string) (domain.ItemBank, bool) {
	raw, err := c.client.Get(ctx, bankKey(bankID)).Bytes()
	if err != nil {
		return domain.ItemBank{}, false
	}
	var bank domain.ItemBank
	if err := json.Unmarshal(raw, &bank); err != nil {
		return domain.ItemBank{}, false
	}
	return bank, true
}

func bankKey(bankID string) string {
	return "quiz:bank:" + bankID
}

func (c *BankCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
