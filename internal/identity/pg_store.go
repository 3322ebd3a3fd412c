package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/clinic-appointments/internal/appointment"
	"github.com/hackgods/clinic-appointments/internal/db"
)

const userColumns = `id, name, email, password_hash, role, cep, street, neighborhood, city, state, created_at, updated_at`

type PgStore struct {
	db appointment.DBTX
}

func NewPgStore(db appointment.DBTX) *PgStore {
	return &PgStore{db: db}
}

func scanUser(row pgx.Row) (*User, error) {
	var (
		u                                 User
		cep                               *string
		street, neighborhood, city, state *string
	)
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &cep,
		&street, &neighborhood, &city, &state, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	u.CEP = cep
	u.Address = addressFrom(street, neighborhood, city, state)
	return &u, nil
}

func addressFrom(street, neighborhood, city, state *string) *appointment.Address {
	if street == nil && neighborhood == nil && city == nil && state == nil {
		return nil
	}
	a := &appointment.Address{}
	if street != nil {
		a.Street = *street
	}
	if neighborhood != nil {
		a.Neighborhood = *neighborhood
	}
	if city != nil {
		a.City = *city
	}
	if state != nil {
		a.State = *state
	}
	return a
}

// addressFields splits an optional address into nullable columns.
func addressFields(a *appointment.Address) (street, neighborhood, city, state *string) {
	if a == nil {
		return nil, nil, nil, nil
	}
	return &a.Street, &a.Neighborhood, &a.City, &a.State
}

func (s *PgStore) Create(ctx context.Context, u User) (*User, error) {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	street, neighborhood, city, state := addressFields(u.Address)

	row := s.db.QueryRow(ctx, `
		INSERT INTO users (id, name, email, password_hash, role, cep, street, neighborhood, city, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		RETURNING `+userColumns,
		u.ID, u.Name, u.Email, u.PasswordHash, u.Role, u.CEP, street, neighborhood, city, state)

	created, err := scanUser(row)
	if err != nil {
		if db.IsPgUniqueViolation(err, "users_email_key") {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return created, nil
}

func (s *PgStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

func (s *PgStore) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}
