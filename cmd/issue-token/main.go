package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/logger"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/service"
)

// issue-token mints a bearer token for local runs. Real deployments get
// their tokens from the school's identity service.
func main() {
	var (
		role  string
		id    int
		perms string
	)
	flag.StringVar(&role, "role", "student", "Token type: student or admin")
	flag.IntVar(&id, "id", 1, "Student or admin ID")
	flag.StringVar(&perms, "perms", "", "Comma-separated admin permissions (default: all)")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	auth := service.NewAuthService(cfg)

	var (
		token string
		err   error
	)
	switch role {
	case "student":
		token, err = auth.GenerateStudentToken(id)
	case "admin":
		token, err = auth.GenerateAdminToken(id, parsePermissions(perms))
	default:
		fmt.Fprintf(os.Stderr, "unknown role %q\n", role)
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to sign token")
	}

	log.Info().Str("role", role).Int("id", id).Dur("expires_in", cfg.JWTExpiry).Msg("Token issued")
	fmt.Println(token)
}

func parsePermissions(raw string) []string {
	if raw == "" {
		out := make([]string, 0, len(model.AllPermissions))
		for _, p := range model.AllPermissions {
			out = append(out, string(p))
		}
		return out
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
