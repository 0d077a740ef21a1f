package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"connection-chat/internal/models"
)

var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrUserNotFound    = errors.New("user not found")
)

// ProfileRepository reads identity data owned by the user service.
type ProfileRepository interface {
	DoctorProfileID(ctx context.Context, userID string) (string, error)
	PatientProfileID(ctx context.Context, userID string) (string, error)
	GetIdentity(ctx context.Context, userID string) (models.IdentitySnapshot, error)
}

// ProfileRepo is a read-only sqlx implementation of ProfileRepository.
type ProfileRepo struct {
	db *sqlx.DB
}

// NewProfileRepo constructs a ProfileRepo.
func NewProfileRepo(db *sqlx.DB) *ProfileRepo {
	return &ProfileRepo{db: db}
}

// DoctorProfileID resolves the doctor profile of a user.
func (r *ProfileRepo) DoctorProfileID(ctx context.Context, userID string) (string, error) {
	return r.profileID(ctx, `SELECT id FROM doctor_profiles WHERE user_id=$1`, userID)
}

// PatientProfileID resolves the patient profile of a user.
func (r *ProfileRepo) PatientProfileID(ctx context.Context, userID string) (string, error) {
	return r.profileID(ctx, `SELECT id FROM patient_profiles WHERE user_id=$1`, userID)
}

func (r *ProfileRepo) profileID(ctx context.Context, query, userID string) (string, error) {
	var id string
	err := r.db.GetContext(ctx, &id, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrProfileNotFound
	}
	return id, err
}

// GetIdentity loads display fields for a user.
func (r *ProfileRepo) GetIdentity(ctx context.Context, userID string) (models.IdentitySnapshot, error) {
	var snap models.IdentitySnapshot
	err := r.db.GetContext(ctx, &snap, `SELECT id, first_name, last_name, role FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.IdentitySnapshot{}, ErrUserNotFound
	}
	return snap, err
}
