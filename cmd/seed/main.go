package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"golang.org/x/crypto/bcrypt"

	"github.com/hackgods/clinic-appointments/internal/appointment"
	"github.com/hackgods/clinic-appointments/internal/config"
	"github.com/hackgods/clinic-appointments/internal/identity"
	"github.com/hackgods/clinic-appointments/internal/storage"
)

type city struct {
	cep, name, state string
}

// A few real CEPs so seeded patients geocode against the forecast API.
var cities = []city{
	{"01001000", "São Paulo", "SP"},
	{"20040020", "Rio de Janeiro", "RJ"},
	{"30130010", "Belo Horizonte", "MG"},
	{"40020000", "Salvador", "BA"},
	{"80010000", "Curitiba", "PR"},
	{"90010000", "Porto Alegre", "RS"},
	{"60060000", "Fortaleza", "CE"},
	{"70040010", "Brasília", "DF"},
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	backend, err := storage.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("database error: %v", err)
	}
	defer backend.Close()

	password := getEnv("SEED_PASSWORD", "clinic123")
	patients := getInt("SEED_PATIENTS", 200)

	users := identity.NewService(backend.Users, nil, identity.NewTokens(cfg.JWTSecret, cfg.JWTExpiresIn))

	if err := seedStaff(ctx, users, password); err != nil {
		log.Fatalf("seed staff: %v", err)
	}
	if err := seedPatients(ctx, backend.Users, password, patients); err != nil {
		log.Fatalf("seed patients: %v", err)
	}

	log.Println("seed complete")
}

func seedStaff(ctx context.Context, users *identity.Service, password string) error {
	staff := []struct {
		name, email string
		role        identity.Role
	}{
		{"Clinic Admin", "admin@clinic.local", identity.RoleAdmin},
		{"Front Desk", "secretary@clinic.local", identity.RoleSecretary},
	}

	for _, s := range staff {
		u, err := users.CreateStaff(ctx, s.name, s.email, password, s.role)
		if errors.Is(err, identity.ErrEmailTaken) {
			log.Printf("staff already present email=%s", s.email)
			continue
		}
		if err != nil {
			return fmt.Errorf("create %s: %w", s.email, err)
		}
		log.Printf("staff created id=%s email=%s role=%s", u.ID, u.Email, u.Role)
	}
	return nil
}

func seedPatients(ctx context.Context, store identity.Store, password string, count int) error {
	log.Printf("seeding %d patients", count)

	// one hash shared by every seeded patient; bcrypt per row dominates otherwise
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	created := 0
	for i := 0; i < count; i++ {
		c := cities[gofakeit.Number(0, len(cities)-1)]
		cep := c.cep
		street := gofakeit.Street()

		u := identity.User{
			Name:         gofakeit.Name(),
			Email:        fmt.Sprintf("patient%04d@example.com", i+1),
			PasswordHash: string(hash),
			Role:         identity.RolePatient,
			CEP:          &cep,
			Address: &appointment.Address{
				Street:       street,
				Neighborhood: gofakeit.City(),
				City:         c.name,
				State:        c.state,
			},
		}

		if _, err := store.Create(ctx, u); err != nil {
			if errors.Is(err, identity.ErrEmailTaken) {
				continue
			}
			return err
		}
		created++

		if created%100 == 0 {
			log.Printf("patients seeded: %d/%d", created, count)
		}
	}

	log.Printf("patients seeded: %d new", created)
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
