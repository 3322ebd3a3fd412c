package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointments/internal/db"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(conn *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: conn}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteUser(row rowScanner) (*User, error) {
	var (
		u                                      User
		role                                   string
		cep, street, neighborhood, city, state sql.NullString
		created, updated                       string
	)
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &role, &cep,
		&street, &neighborhood, &city, &state, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	u.Role = Role(role)
	u.CEP = nullPtr(cep)
	u.Address = addressFrom(nullPtr(street), nullPtr(neighborhood), nullPtr(city), nullPtr(state))
	if u.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if u.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &u, nil
}

func nullPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func (s *SQLiteStore) Create(ctx context.Context, u User) (*User, error) {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	street, neighborhood, city, state := addressFields(u.Address)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, role, cep, street, neighborhood, city, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING `+userColumns,
		u.ID.String(), u.Name, u.Email, u.PasswordHash, string(u.Role), u.CEP, street, neighborhood, city, state, now, now)

	created, err := scanSQLiteUser(row)
	if err != nil {
		if db.IsSQLiteUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return created, nil
}

func (s *SQLiteStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	return scanSQLiteUser(row)
}

func (s *SQLiteStore) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id.String())
	return scanSQLiteUser(row)
}
