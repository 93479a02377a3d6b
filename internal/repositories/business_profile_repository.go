package repositories

import (
	"context"
	"errors"
	"fmt"

	"contractor-backend/internal/apperr"
	"contractor-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type BusinessProfileRepository struct {
	DB *pgxpool.Pool
}

func NewBusinessProfileRepository(db *pgxpool.Pool) *BusinessProfileRepository {
	return &BusinessProfileRepository{DB: db}
}

func (r *BusinessProfileRepository) Get(ctx context.Context, userID int64) (*models.BusinessProfile, error) {
	p := models.BusinessProfile{UserID: userID}
	err := r.DB.QueryRow(ctx,
		`SELECT name, address, phone, email, license_number, logo_key
		 FROM business_profiles WHERE user_id = $1`, userID,
	).Scan(&p.Name, &p.Address, &p.Phone, &p.Email, &p.LicenseNumber, &p.LogoKey)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("profiles.Get", "no business profile for user %d", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("get business profile: %w", err)
	}
	return &p, nil
}

// Upsert creates or replaces the profile of p.UserID
func (r *BusinessProfileRepository) Upsert(ctx context.Context, p *models.BusinessProfile) error {
	_, err := r.DB.Exec(ctx,
		`INSERT INTO business_profiles (user_id, name, address, phone, email, license_number, logo_key, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		 ON CONFLICT (user_id) DO UPDATE SET
			name = EXCLUDED.name, address = EXCLUDED.address, phone = EXCLUDED.phone,
			email = EXCLUDED.email, license_number = EXCLUDED.license_number,
			logo_key = EXCLUDED.logo_key, updated_at = NOW()`,
		p.UserID, p.Name, p.Address, p.Phone, p.Email, p.LicenseNumber, p.LogoKey,
	)
	if err != nil {
		return fmt.Errorf("upsert business profile: %w", err)
	}
	return nil
}
