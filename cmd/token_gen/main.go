package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/technosupport/ts-licensing/internal/auth"
	"github.com/technosupport/ts-licensing/internal/config"
	"github.com/technosupport/ts-licensing/internal/tokens"
)

// token_gen issues brand bearer tokens for operator tooling, or revokes one
// by jti when Redis is configured.
func main() {
	configPath := flag.String("config", "config/default.yaml", "Path to config file")
	brandID := flag.String("brand-id", "", "Brand UUID")
	brandSlug := flag.String("brand-slug", "", "Brand slug")
	ttl := flag.Duration("ttl", 24*time.Hour, "Token lifetime")
	revoke := flag.String("revoke", "", "Revoke the token with this jti instead of issuing one")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *brandID == "" {
		log.Fatalf("-brand-id is required")
	}

	if *revoke != "" {
		if cfg.Redis.Addr == "" {
			log.Fatalf("Revocation needs redis.addr to be configured")
		}
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		bl := auth.NewRedisBlacklist(rdb)
		if err := bl.AddToBlacklist(context.Background(), *brandID, *revoke, *ttl); err != nil {
			log.Fatalf("Failed to revoke token: %v", err)
		}
		fmt.Printf("revoked %s for brand %s\n", *revoke, *brandID)
		return
	}

	if *brandSlug == "" {
		log.Fatalf("-brand-slug is required")
	}
	mgr := tokens.NewManager(cfg.Auth.JWTSigningKey)
	token, err := mgr.GenerateBrandToken(*brandID, *brandSlug, *ttl)
	if err != nil {
		log.Fatalf("Failed to issue token: %v", err)
	}
	fmt.Println(token)
}
