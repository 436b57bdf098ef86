package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/saturnino-fabrica-de-software/veritas/internal/reviewer"
)

// Issues a reviewer JWT for the review and revoke endpoints:
//
//	go run ./cmd/reviewtoken -id ana -role supervisor -ttl 8h
func main() {
	id := flag.String("id", "", "Reviewer identifier (required)")
	role := flag.String("role", reviewer.RoleReviewer, "Role: reviewer or supervisor")
	ttl := flag.Duration("ttl", 8*time.Hour, "Token lifetime")
	flag.Parse()

	_ = godotenv.Load()

	secret := os.Getenv("REVIEWER_JWT_SECRET")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "error: REVIEWER_JWT_SECRET is not set")
		os.Exit(1)
	}
	issuer := os.Getenv("REVIEWER_JWT_ISSUER")
	if issuer == "" {
		issuer = "veritas"
	}

	token, err := reviewer.NewTokenService(secret, issuer, *ttl).GenerateToken(*id, *role)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	fmt.Printf("REVIEWER=%s\nROLE=%s\nEXPIRES_IN=%s\nTOKEN=%s\n", *id, *role, *ttl, token)
}
