// Package sqlstore persists the audit trail through bun on Postgres or SQLite.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	_ "modernc.org/sqlite" // registers "sqlite"

	"quiz-live-service/internal/domain"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// AuditStore is an append-only app.AuditLog backed by SQL.
type AuditStore struct {
	db *bun.DB
}

// Open connects with driver "postgres" or "sqlite" and makes sure the audit tables exist.
func Open(ctx context.Context, driver, dsn string) (*AuditStore, error) {
	var db *bun.DB
	switch driver {
	case DriverPostgres:
		if dsn == "" {
			return nil, fmt.Errorf("audit: postgres dsn not configured")
		}
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
		db = bun.NewDB(sqldb, pgdialect.New())
	case DriverSQLite:
		if dsn == "" {
			dsn = "file:quiz-audit.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)"
		}
		sqldb, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("audit: open sqlite: %w", err)
		}
		// one writer keeps sqlite from reporting SQLITE_BUSY under concurrent appends
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	default:
		return nil, fmt.Errorf("audit: unsupported driver %q", driver)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit: ping: %w", err)
	}
	store := &AuditStore{db: db}
	if err := store.createSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *AuditStore) createSchema(ctx context.Context) error {
	for _, model := range []interface{}{(*answerRow)(nil), (*actionRow)(nil)} {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("audit: create schema: %w", err)
		}
	}
	return nil
}

func (s *AuditStore) Close() error {
	return s.db.Close()
}

type answerRow struct {
	bun.BaseModel `bun:"table:answered_records"`

	ID            string    `bun:"id,pk"`
	LiveID        string    `bun:"live_id,notnull"`
	ParticipantID string    `bun:"participant_id,notnull"`
	QuestionID    string    `bun:"question_id,notnull"`
	AnswerIndex   *int      `bun:"answer_index"`
	Correct       bool      `bun:"correct,notnull"`
	TimedOut      bool      `bun:"timed_out,notnull"`
	ElapsedMs     int64     `bun:"elapsed_ms,notnull"`
	ThetaAfter    float64   `bun:"theta_after,notnull"`
	LevelAfter    string    `bun:"level_after,notnull"`
	CreatedAt     time.Time `bun:"created_at,notnull"`
}

type actionRow struct {
	bun.BaseModel `bun:"table:simulator_actions"`

	ActionID      string    `bun:"action_id,pk"`
	SessionID     string    `bun:"session_id,notnull"`
	ParticipantID string    `bun:"participant_id,notnull"`
	StepID        string    `bun:"step_id,nullzero"`
	ActionType    string    `bun:"action_type,notnull"`
	TargetElement string    `bun:"target_element,nullzero"`
	Coordinates   string    `bun:"coordinates,nullzero"`
	InputValue    *string   `bun:"input_value"`
	IsCorrect     bool      `bun:"is_correct,notnull"`
	ScoreDelta    int       `bun:"score_delta,notnull"`
	LatencyMs     int64     `bun:"latency_ms,notnull"`
	Metadata      string    `bun:"metadata,nullzero"`
	CreatedAt     time.Time `bun:"created_at,notnull"`
}

func (s *AuditStore) AppendAnswer(ctx context.Context, record domain.AnsweredRecord) error {
	row := answerRow{
		ID:            record.ID,
		LiveID:        record.LiveID,
		ParticipantID: record.ParticipantID,
		QuestionID:    record.QuestionID,
		AnswerIndex:   record.AnswerIndex,
		Correct:       record.Correct,
		TimedOut:      record.TimedOut,
		ElapsedMs:     record.ElapsedMs,
		ThetaAfter:    record.ThetaAfter,
		LevelAfter:    string(record.LevelAfter),
		CreatedAt:     record.CreatedAt.UTC(),
	}
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return fmt.Errorf("append answer: %w", err)
	}
	return nil
}

func (s *AuditStore) AppendAction(ctx context.Context, action domain.SimulatorAction) error {
	row := actionRow{
		ActionID:      action.ActionID,
		SessionID:     action.SessionID,
		ParticipantID: action.ParticipantID,
		StepID:        action.StepID,
		ActionType:    string(action.ActionType),
		TargetElement: action.TargetElement,
		InputValue:    action.InputValue,
		IsCorrect:     action.IsCorrect,
		ScoreDelta:    action.ScoreDelta,
		LatencyMs:     action.LatencyMs,
		CreatedAt:     action.Timestamp.UTC(),
	}
	if action.Coordinates != nil {
		raw, err := json.Marshal(action.Coordinates)
		if err != nil {
			return fmt.Errorf("encode coordinates: %w", err)
		}
		row.Coordinates = string(raw)
	}
	if len(action.Metadata) > 0 {
		raw, err := json.Marshal(action.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		row.Metadata = string(raw)
	}
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return fmt.Errorf("append action: %w", err)
	}
	return nil
}

// Answers returns the records of one live session in insertion time order.
func (s *AuditStore) Answers(ctx context.Context, liveID string) ([]domain.AnsweredRecord, error) {
	var rows []answerRow
	err := s.db.NewSelect().Model(&rows).
		Where("live_id = ?", liveID).
		OrderExpr("created_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	out := make([]domain.AnsweredRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.AnsweredRecord{
			ID:            r.ID,
			LiveID:        r.LiveID,
			ParticipantID: r.ParticipantID,
			QuestionID:    r.QuestionID,
			AnswerIndex:   r.AnswerIndex,
			Correct:       r.Correct,
			TimedOut:      r.TimedOut,
			ElapsedMs:     r.ElapsedMs,
			ThetaAfter:    r.ThetaAfter,
			LevelAfter:    domain.Level(r.LevelAfter),
			CreatedAt:     r.CreatedAt,
		})
	}
	return out, nil
}

// Actions returns the action log of a simulator session, optionally narrowed to one participant.
func (s *AuditStore) Actions(ctx context.Context, sessionID, participantID string) ([]domain.SimulatorAction, error) {
	var rows []actionRow
	q := s.db.NewSelect().Model(&rows).Where("session_id = ?", sessionID)
	if participantID != "" {
		q = q.Where("participant_id = ?", participantID)
	}
	if err := q.OrderExpr("created_at ASC, action_id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	out := make([]domain.SimulatorAction, 0, len(rows))
	for _, r := range rows {
		action := domain.SimulatorAction{
			ActionID:      r.ActionID,
			ParticipantID: r.ParticipantID,
			SessionID:     r.SessionID,
			StepID:        r.StepID,
			ActionType:    domain.ActionType(r.ActionType),
			TargetElement: r.TargetElement,
			InputValue:    r.InputValue,
			IsCorrect:     r.IsCorrect,
			ScoreDelta:    r.ScoreDelta,
			LatencyMs:     r.LatencyMs,
			Timestamp:     r.CreatedAt,
		}
		if r.Coordinates != "" {
			var p domain.Point
			if err := json.Unmarshal([]byte(r.Coordinates), &p); err == nil {
				action.Coordinates = &p
			}
		}
		if r.Metadata != "" {
			_ = json.Unmarshal([]byte(r.Metadata), &action.Metadata)
		}
		out = append(out, action)
	}
	return out, nil
}
