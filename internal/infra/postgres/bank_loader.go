package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-live-service/internal/domain"
)

// BankLoader loads item banks stored as JSONB in question_banks.
type BankLoader struct {
	pool *pgxpool.Pool
}

func NewBankLoader(pool *pgxpool.Pool) *BankLoader {
	return &BankLoader{pool: pool}
}

func (l *BankLoader) LoadBank(ctx context.Context, bankID string) (domain.ItemBank, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM question_banks WHERE id=$1`, bankID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ItemBank{}, domain.ErrBankNotFound
	}
	if err != nil {
		return domain.ItemBank{}, fmt.Errorf("load bank: %w", err)
	}
	var bank domain.ItemBank
	if err := json.Unmarshal(raw, &bank); err != nil {
		return domain.ItemBank{}, fmt.Errorf("unmarshal bank: %w", err)
	}
	bank.ID = bankID
	return bank, nil
}

// SaveBank inserts or replaces a bank. Question ids are filled in before storing so the
// stored document is stable across loads.
func (l *BankLoader) SaveBank(ctx context.Context, bank domain.ItemBank) error {
	if bank.ID == "" {
		return fmt.Errorf("save bank: %w", domain.ErrInvalidInput)
	}
	for i := range bank.Questions {
		bank.Questions[i].EnsureID()
	}
	raw, err := json.Marshal(bank)
	if err != nil {
		return fmt.Errorf("marshal bank: %w", err)
	}
	_, err = l.pool.Exec(ctx, `
INSERT INTO question_banks (id, data, updated_at) VALUES ($1, $2, now())
ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`, bank.ID, raw)
	if err != nil {
		return fmt.Errorf("save bank: %w", err)
	}
	return nil
}
