package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/enterprise-access/access-api/internal/config"
	"github.com/enterprise-access/access-api/internal/domain/policy"
	"github.com/enterprise-access/access-api/internal/pkg/database"
	"github.com/enterprise-access/access-api/internal/pkg/jwt"
)

// Mints an access token for local testing and, when an enterprise is given,
// lists the policies that token could redeem against.
func main() {
	lmsUserID := flag.Int64("lms-user-id", 3, "LMS user id to put in the token")
	email := flag.String("email", "learner@example.com", "email claim")
	staff := flag.Bool("staff", false, "mint a staff token")
	enterprise := flag.String("enterprise", "", "enterprise customer UUID whose active policies to list")
	flag.Parse()

	cfg := config.Load()

	jwtService := jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL)
	token, err := jwtService.GenerateAccessToken(*lmsUserID, *email, *staff)
	if err != nil {
		log.Fatalf("Failed to mint token: %v", err)
	}
	fmt.Println("--- Access token ---")
	fmt.Printf("Authorization: JWT %s\n", token)
	fmt.Printf("expires in %s\n", jwtService.GetAccessTTL())

	if *enterprise == "" {
		return
	}
	enterpriseUUID, err := uuid.Parse(*enterprise)
	if err != nil {
		log.Fatalf("Invalid enterprise UUID: %v", err)
	}

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.ClosePostgres(db)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	policies, err := policy.NewRepository(db).ListActiveForEnterprise(ctx, enterpriseUUID)
	if err != nil {
		log.Fatalf("Failed to list policies: %v", err)
	}
	policy.SortStable(policies)

	fmt.Println("--- Active policies ---")
	for _, p := range policies {
		limit := "none"
		if p.SpendLimit != nil {
			limit = fmt.Sprintf("%d", *p.SpendLimit)
		}
		fmt.Printf("%s %-50s subsidy=%s catalog=%s spend_limit=%s retired=%t\n",
			p.UUID, p.PolicyType, p.SubsidyUUID, p.CatalogUUID, limit, p.Retired)
	}
	fmt.Println("-----------------------")
}
