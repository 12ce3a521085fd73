package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/emberandwick/storefront-backend/pkg/auth"
	"github.com/emberandwick/storefront-backend/pkg/config"
	"github.com/emberandwick/storefront-backend/pkg/enums"
	"github.com/emberandwick/storefront-backend/pkg/logger"
)

// operator-token mints a bearer token for the admin API. Only the JWT
// settings are read so the command works without database or Redis config.
func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "operator-token"})

	_ = godotenv.Load()

	operator := flag.String("operator", "", "operator id recorded in the token subject")
	role := flag.String("role", enums.OperatorRoleAdmin.String(), "operator role: admin|viewer")
	ttl := flag.Duration("ttl", 0, "token lifetime; defaults to STOREFRONT_JWT_EXPIRATION_MINUTES")
	flag.Parse()

	var jwtCfg config.JWTConfig
	if err := envconfig.Process(config.EnvPrefix, &jwtCfg); err != nil {
		logg.Error(ctx, "failed to load jwt config", err)
		os.Exit(1)
	}
	if *ttl > 0 {
		jwtCfg.ExpirationMinutes = int(ttl.Minutes())
	}

	parsedRole, err := enums.ParseOperatorRole(*role)
	if err != nil {
		logg.Error(ctx, "invalid role", err)
		os.Exit(1)
	}

	token, err := auth.MintAccessToken(jwtCfg, time.Now(), auth.AccessTokenPayload{
		OperatorID: *operator,
		Role:       parsedRole,
	})
	if err != nil {
		logg.Error(ctx, "failed to mint token", err)
		os.Exit(1)
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"operator":           *operator,
		"role":               parsedRole.String(),
		"expiration_minutes": jwtCfg.ExpirationMinutes,
	})
	logg.Info(ctx, "operator token minted")
	fmt.Println(token)
}
