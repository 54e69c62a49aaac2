package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/BrandonDHaskell/checkin/internal/checkin/store"
)

type ParticipantStore struct {
	db *sql.DB
}

func NewParticipantStore(db *sql.DB) *ParticipantStore {
	return &ParticipantStore{db: db}
}

func (s *ParticipantStore) GetByID(ctx context.Context, id int64) (store.Participant, error) {
	return s.getBy(ctx, "GetByID", "id", id)
}

func (s *ParticipantStore) GetByPhone(ctx context.Context, phone string) (store.Participant, error) {
	return s.getBy(ctx, "GetByPhone", "phone", phone)
}

func (s *ParticipantStore) GetByScanToken(ctx context.Context, token string) (store.Participant, error) {
	return s.getBy(ctx, "GetByScanToken", "scan_token", token)
}

func (s *ParticipantStore) getBy(ctx context.Context, op, column string, v any) (store.Participant, error) {
	var (
		p         store.Participant
		company   sql.NullString
		createdMs int64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT id, name, email, phone, scan_token, company, created_at_ms
FROM participants
WHERE `+column+` = $1`, v).Scan(&p.ID, &p.Name, &p.Email, &p.Phone, &p.ScanToken, &company, &createdMs)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Participant{}, store.ErrNotFound
	}
	if err != nil {
		return store.Participant{}, fmt.Errorf("%s query: %w", op, err)
	}
	p.Company = company.String
	p.CreatedAt = time.UnixMilli(createdMs).UTC()
	return p, nil
}
