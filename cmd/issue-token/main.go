// Command issue-token prints a signed API token for an existing user.
// Identity is managed outside this service; operators use this to mint
// tokens for testing and for admin accounts.
//
//	go run ./cmd/issue-token -email admin@example.com
package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"community-campaigns/internal/auth"
	"community-campaigns/internal/config"
	"community-campaigns/internal/database"
	"community-campaigns/internal/repository"
	"community-campaigns/internal/services"
	"community-campaigns/pkg/logger"
)

func main() {
	email := flag.String("email", "", "email of the user to issue a token for")
	flag.Parse()

	if *email == "" {
		logger.Fatalf("-email is required")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	logger.Init(cfg.Log.Level)
	auth.InitJWT(cfg.App.JWTSecret, cfg.App.TokenExpiration)

	db, err := database.Open(cfg.Database.Driver, cfg.GetDSN())
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	users := services.NewUserService(repository.NewUserRepository(db))
	user, err := users.GetByEmail(ctx, *email)
	if err != nil {
		logger.Fatalf("Failed to look up %s: %v", *email, err)
	}

	token, err := auth.GenerateToken(user.ID, user.Email, user.IsAdmin)
	if err != nil {
		logger.Fatalf("Failed to sign token: %v", err)
	}

	fmt.Println(token)
}
