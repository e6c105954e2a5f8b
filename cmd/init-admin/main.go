package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"ai_chat/internal/auth"
	"ai_chat/internal/config"
	"ai_chat/internal/models"
	"ai_chat/internal/storage"

	"github.com/google/uuid"
)

// Bootstrap tool that creates the first admin account. Safe to run
// repeatedly: it exits without changes when the account already exists.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	email := strings.ToLower(strings.TrimSpace(os.Getenv("ADMIN_BOOTSTRAP_EMAIL")))
	password := os.Getenv("ADMIN_BOOTSTRAP_PASSWORD")

	if email == "" || password == "" {
		fmt.Fprintf(os.Stderr, "ERROR: ADMIN_BOOTSTRAP_EMAIL and ADMIN_BOOTSTRAP_PASSWORD must be set\n")
		os.Exit(1)
	}
	if !strings.Contains(email, "@") {
		fmt.Fprintf(os.Stderr, "ERROR: Invalid email format: %s\n", email)
		os.Exit(1)
	}
	if len(password) < 8 {
		fmt.Fprintf(os.Stderr, "ERROR: Password must be at least 8 characters long\n")
		os.Exit(1)
	}

	fmt.Println("Connecting to database...")
	db, err := storage.NewDB(storage.DBConfig{
		DSN:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,

		ProviderCacheSize: 10,
		ProviderCacheTTL:  5 * time.Minute,
		ModelCacheSize:    10,
		ModelCacheTTL:     5 * time.Minute,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	repo := storage.NewUserRepository(db)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	existing, err := repo.GetByEmail(ctx, email)
	if err != nil && err != storage.ErrUserNotFound {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to check for existing user: %v\n", err)
		os.Exit(1)
	}
	if existing != nil {
		fmt.Printf("INFO: User with email %s already exists (role %s)\n", email, existing.Role)
		fmt.Println("Exiting successfully (no action taken)")
		os.Exit(0)
	}

	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to hash password: %v\n", err)
		os.Exit(1)
	}

	now := time.Now()
	adminUser := &models.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: passwordHash,
		DisplayName:  "Administrator",
		Role:         models.RoleAdmin,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := repo.Create(ctx, adminUser); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to create admin user: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("SUCCESS: Bootstrap admin user created")
	fmt.Printf("Email: %s\n", adminUser.Email)
	fmt.Printf("ID: %s\n", adminUser.ID)
	fmt.Println("\nFor security, remove ADMIN_BOOTSTRAP_EMAIL and ADMIN_BOOTSTRAP_PASSWORD from your environment.")
}
