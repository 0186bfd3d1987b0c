// Command devtoken signs an access token with the configured shared secret so
// the API can be exercised locally without the identity provider.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/boost-marketplace/internal/auth"
	"github.com/boost-marketplace/internal/config"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	envPath := flag.String("env", ".env", "Path to dotenv file")
	userID := flag.String("user", "", "Subject (user id) of the token")
	email := flag.String("email", "", "Email claim")
	name := flag.String("name", "", "Display name claim")
	ttl := flag.Duration("ttl", 0, "Token lifetime (0 = auth.token_ttl)")
	flag.Parse()

	if *userID == "" {
		log.Fatal("-user is required")
	}

	if err := config.LoadEnv(*envPath); err != nil {
		log.Fatalf("Failed to load env file: %v", err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *ttl > 0 {
		cfg.Auth.TokenTTL = *ttl
	}

	issuer, err := auth.NewIssuer(&cfg.Auth)
	if err != nil {
		log.Fatalf("Failed to create issuer: %v", err)
	}

	token, err := issuer.Issue(*userID, *email, *name, time.Now())
	if err != nil {
		log.Fatalf("Failed to sign token: %v", err)
	}
	fmt.Println(token)
}
