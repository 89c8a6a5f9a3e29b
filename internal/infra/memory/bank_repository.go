package memory

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	"quiz-live-service/internal/domain"
)

// BankLoader fetches item banks from a backing store (static data, a file, Postgres).
type BankLoader interface {
	LoadBank(ctx context.Context, bankID string) (domain.ItemBank, error)
}

// BankRepository caches item banks with TTL to avoid repeated loader hits.
type BankRepository struct {
	loader BankLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu    sync.RWMutex
	cache map[string]cachedBank

	rndMu sync.Mutex
	rnd   *rand.Rand
}

type cachedBank struct {
	bank      domain.ItemBank
	expiresAt time.Time
}

func NewBankRepository(loader BankLoader, ttl time.Duration) *BankRepository {
	return &BankRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedBank),
	}
}

func (r *BankRepository) GetBank(ctx context.Context, bankID string) (domain.ItemBank, error) {
	if bank, ok := r.cached(bankID); ok {
		return bank, nil
	}

	result, err, _ := r.sf.Do(bankID, func() (interface{}, error) {
		if bank, ok := r.cached(bankID); ok {
			return bank, nil
		}
		bank, err := r.loader.LoadBank(ctx, bankID)
		if err != nil {
			return domain.ItemBank{}, err
		}
		prepare(&bank)

		expiresAt := r.clock().Add(r.ttlWithJitter())
		r.mu.Lock()
		r.cache[bankID] = cachedBank{bank: bank, expiresAt: expiresAt}
		r.mu.Unlock()
		return bank, nil
	})
	if err != nil {
		return domain.ItemBank{}, err
	}
	return result.(domain.ItemBank), nil
}

// Invalidate drops a cached bank so the next read goes to the loader.
func (r *BankRepository) Invalidate(bankID string) {
	r.mu.Lock()
	delete(r.cache, bankID)
	r.mu.Unlock()
}

func (r *BankRepository) cached(bankID string) (domain.ItemBank, bool) {
	now := r.clock()
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[bankID]
	if !ok || !entry.expiresAt.After(now) {
		return domain.ItemBank{}, false
	}
	return entry.bank, true
}

func (r *BankRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// up to 10% jitter spreads expirations across instances
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// prepare assigns content ids to questions loaded without one.
func prepare(bank *domain.ItemBank) {
	for i := range bank.Questions {
		bank.Questions[i].EnsureID()
	}
}

// StaticBankLoader serves banks from a map (tests, demos, the built-in sample).
type StaticBankLoader struct {
	banks map[string]domain.ItemBank
}

func NewStaticBankLoader(banks map[string]domain.ItemBank) *StaticBankLoader {
	return &StaticBankLoader{banks: banks}
}

func (l *StaticBankLoader) LoadBank(_ context.Context, bankID string) (domain.ItemBank, error) {
	if bank, ok := l.banks[bankID]; ok {
		return bank, nil
	}
	return domain.ItemBank{}, domain.ErrBankNotFound
}

// FileBankLoader reads a YAML document holding one bank or a list of banks.
type FileBankLoader struct {
	path string
}

func NewFileBankLoader(path string) *FileBankLoader {
	return &FileBankLoader{path: path}
}

func (l *FileBankLoader) LoadBank(_ context.Context, bankID string) (domain.ItemBank, error) {
	banks, err := ReadBankFile(l.path)
	if err != nil {
		return domain.ItemBank{}, err
	}
	for _, bank := range banks {
		if bank.ID == bankID {
			return bank, nil
		}
	}
	return domain.ItemBank{}, domain.ErrBankNotFound
}

// ReadBankFile parses a bank file. A single bank without an id is named "default".
func ReadBankFile(path string) ([]domain.ItemBank, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bank file: %w", err)
	}
	var doc struct {
		Banks     []domain.ItemBank `yaml:"banks"`
		ID        string            `yaml:"id"`
		Questions []domain.Question `yaml:"questions"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse bank file: %w", err)
	}
	banks := doc.Banks
	if len(doc.Questions) > 0 {
		id := doc.ID
		if id == "" {
			id = "default"
		}
		banks = append(banks, domain.ItemBank{ID: id, Questions: doc.Questions})
	}
	for i := range banks {
		prepare(&banks[i])
		if err := validateBank(banks[i]); err != nil {
			return nil, err
		}
	}
	return banks, nil
}

func validateBank(bank domain.ItemBank) error {
	for _, q := range bank.Questions {
		if !q.Level.Valid() {
			return fmt.Errorf("bank %s question %s: unknown level %q: %w", bank.ID, q.ID, q.Level, domain.ErrInvalidInput)
		}
		if len(q.Options) < 2 || q.AnswerIndex < 0 || q.AnswerIndex >= len(q.Options) {
			return fmt.Errorf("bank %s question %s: bad options: %w", bank.ID, q.ID, domain.ErrInvalidInput)
		}
	}
	return nil
}
