package postgres

import (
	"context"
	"fmt"

	"github.com/dvloznov/finko-backend/internal/domain"
	"github.com/jackc/pgx/v5"
)

const profileColumns = `id::text, bank_name, sender_patterns, extraction_instructions, COALESCE(example_image_url, ''), created_at, updated_at`

func scanProfile(row pgx.Row) (*domain.BankEmailProfile, error) {
	var p domain.BankEmailProfile
	if err := row.Scan(&p.ID, &p.BankName, &p.SenderPatterns, &p.ExtractionInstructions, &p.ExampleImageURL, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// ListProfiles returns every profile in matching precedence order.
func (s *Store) ListProfiles(ctx context.Context) ([]domain.BankEmailProfile, error) {
	rows, err := s.db.Query(ctx, "SELECT "+profileColumns+" FROM bank_email_configs ORDER BY bank_name, created_at")
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	profiles := []domain.BankEmailProfile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, *p)
	}
	return profiles, rows.Err()
}

func (s *Store) CreateProfile(ctx context.Context, p domain.BankEmailProfile) (*domain.BankEmailProfile, error) {
	created, err := scanProfile(s.db.QueryRow(ctx, `
		INSERT INTO bank_email_configs (bank_name, sender_patterns, extraction_instructions, example_image_url)
		VALUES ($1, $2, $3, $4)
		RETURNING `+profileColumns,
		p.BankName, p.SenderPatterns, p.ExtractionInstructions, nullIfEmpty(p.ExampleImageURL),
	))
	if err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}
	return created, nil
}

// UpdateProfile replaces the editable fields, or returns domain.ErrNotFound.
func (s *Store) UpdateProfile(ctx context.Context, p domain.BankEmailProfile) (*domain.BankEmailProfile, error) {
	updated, err := scanProfile(s.db.QueryRow(ctx, `
		UPDATE bank_email_configs
		SET bank_name = $2, sender_patterns = $3, extraction_instructions = $4,
			example_image_url = $5, updated_at = NOW()
		WHERE id::text = $1
		RETURNING `+profileColumns,
		p.ID, p.BankName, p.SenderPatterns, p.ExtractionInstructions, nullIfEmpty(p.ExampleImageURL),
	))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return updated, nil
}

func (s *Store) DeleteProfile(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, "DELETE FROM bank_email_configs WHERE id::text = $1", id)
	if err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
