package identity

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hackgods/clinic-appointments/internal/appointment"
	"github.com/hackgods/clinic-appointments/internal/postal"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

const minPasswordLen = 6

// AddressLookup resolves a CEP at registration time.
type AddressLookup interface {
	Lookup(ctx context.Context, cep string) (postal.Address, error)
}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
	CEP      string
}

// Session is a user together with a freshly issued token.
type Session struct {
	User  *User
	Token string
}

type Service struct {
	store    Store
	lookup   AddressLookup
	tokens   *Tokens
	hashCost int
}

func NewService(store Store, lookup AddressLookup, tokens *Tokens) *Service {
	return &Service{store: store, lookup: lookup, tokens: tokens, hashCost: bcrypt.DefaultCost}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a PATIENT account. A CEP, when given, must resolve.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	name := strings.TrimSpace(in.Name)
	email := normalizeEmail(in.Email)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: email is invalid", ErrValidation)
	}
	if len(in.Password) < minPasswordLen {
		return nil, fmt.Errorf("%w: password must have at least %d characters", ErrValidation, minPasswordLen)
	}

	if _, err := s.store.GetByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("check email: %w", err)
	}

	u := User{Name: name, Email: email, Role: RolePatient}

	if cep := strings.TrimSpace(in.CEP); cep != "" {
		if s.lookup == nil {
			return nil, errors.New("cep lookup not configured")
		}
		addr, err := s.lookup.Lookup(ctx, cep)
		if err != nil {
			return nil, err
		}
		u.CEP = &addr.CEP
		u.Address = &appointment.Address{
			Street:       addr.Street,
			Neighborhood: addr.Neighborhood,
			City:         addr.City,
			State:        addr.State,
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u.PasswordHash = string(hash)

	created, err := s.store.Create(ctx, u)
	if err != nil {
		return nil, err
	}
	log.Printf("user registered id=%s role=%s", created.ID, created.Role)
	return s.session(created)
}

func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	u, err := s.store.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.session(u)
}

func (s *Service) Me(ctx context.Context, userID uuid.UUID) (*User, error) {
	return s.store.GetByID(ctx, userID)
}

// CreateStaff provisions a SECRETARY or ADMIN account; it is not reachable
// from the public API.
func (s *Service) CreateStaff(ctx context.Context, name, email, password string, role Role) (*User, error) {
	if !role.IsStaff() {
		return nil, fmt.Errorf("%w: %q is not a staff role", ErrValidation, role)
	}
	if len(password) < minPasswordLen {
		return nil, fmt.Errorf("%w: password must have at least %d characters", ErrValidation, minPasswordLen)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return s.store.Create(ctx, User{
		Name:         strings.TrimSpace(name),
		Email:        normalizeEmail(email),
		PasswordHash: string(hash),
		Role:         role,
	})
}

// PatientAddress returns the stored address used to enrich bookings.
func (s *Service) PatientAddress(ctx context.Context, patientID uuid.UUID) (*appointment.Address, error) {
	u, err := s.store.GetByID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return u.Address, nil
}

func (s *Service) Authenticate(raw string) (Principal, error) {
	return s.tokens.Verify(raw)
}

func (s *Service) session(u *User) (*Session, error) {
	token, err := s.tokens.Issue(u.ID, u.Role)
	if err != nil {
		return nil, err
	}
	return &Session{User: u, Token: token}, nil
}
