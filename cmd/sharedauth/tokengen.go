package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"sharedauth/internal/auth/models"
	"sharedauth/internal/auth/service"
	"sharedauth/internal/enrich"
	"sharedauth/internal/features"
	"sharedauth/internal/platform/config"
	"sharedauth/internal/provider"
	"sharedauth/internal/token"
	"sharedauth/internal/tokencodec"
	"sharedauth/internal/validation"
	strutil "sharedauth/pkg/platform/strings"
)

type tokengenOptions struct {
	app          string
	userID       string
	email        string
	name         string
	roles        string
	accessToken  string
	refreshToken string
	accessTTL    time.Duration
	json         bool
}

type tokenOutput struct {
	Cookie    string   `json:"cookie"`
	Value     string   `json:"value"`
	SessionID string   `json:"session_id"`
	Roles     []string `json:"roles"`
	ExpiresIn string   `json:"expires_in"`
}

// newTokengenCmd mints a session cookie value for local development by running
// the regular sign-in path without an Identity Provider round trip.
func newTokengenCmd() *cobra.Command {
	var flags configFlags
	var opts tokengenOptions
	cmd := &cobra.Command{
		Use:   "tokengen",
		Short: "Mint a session cookie for local development",
		Long: `tokengen signs a session cookie with the configured secret (AUTH_SECRET or
the development default). Paste the value into the {app}.session-token cookie.

Tokens signed with the development secret will NOT work in production.`,
		Example: `  sharedauth tokengen --app admin --user-id u-1 --roles admin
  sharedauth tokengen --app partner --email p@example.com --refresh-token rt --access-ttl 15m --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := flags.load(cmd.Flags())
			return generateToken(cmd.Context(), cmd.OutOrStdout(), cfg, opts)
		},
	}
	flags.register(cmd.Flags())
	fs := cmd.Flags()
	fs.StringVar(&opts.app, "app", string(models.AppFrontend), "application: frontend, partner or admin")
	fs.StringVar(&opts.userID, "user-id", "dev-user", "subject id")
	fs.StringVar(&opts.email, "email", "dev@example.com", "user email")
	fs.StringVar(&opts.name, "name", "Dev User", "display name")
	fs.StringVar(&opts.roles, "roles", "", "comma separated roles; empty lets enrichment derive them")
	fs.StringVar(&opts.accessToken, "access-token", "", "provider access token (credentials flow when empty)")
	fs.StringVar(&opts.refreshToken, "refresh-token", "", "provider refresh token")
	fs.DurationVar(&opts.accessTTL, "access-ttl", 15*time.Minute, "provider access token lifetime")
	fs.BoolVar(&opts.json, "json", false, "output as JSON")
	return cmd
}

func generateToken(ctx context.Context, out io.Writer, cfg config.Config, opts tokengenOptions) error {
	app, err := models.ParseAppType(opts.app)
	if err != nil {
		return err
	}

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	flags, err := features.NewEngine(features.DefaultDefinitions(), features.WithLogger(quiet))
	if err != nil {
		return err
	}
	svc, err := service.New(service.Config{
		App:           app,
		Env:           cfg.Env,
		Production:    cfg.IsProduction(),
		CookieDomain:  cfg.CookieDomain,
		SessionMaxAge: cfg.SessionMaxAge,
	}, flags,
		token.New(provider.New(cfg.APIURL), token.WithLogger(quiet)),
		enrich.New(enrich.WithLogger(quiet)),
		validation.New(validation.WithLogger(quiet)),
		service.WithLogger(quiet),
	)
	if err != nil {
		return err
	}

	identity := models.Identity{ID: opts.userID, Email: opts.email, DisplayName: opts.name}
	if strings.TrimSpace(opts.roles) != "" {
		identity.Roles = strutil.DedupeAndTrimLower(strings.Split(opts.roles, ","))
	}
	var tokens *models.ProviderTokens
	if opts.accessToken != "" {
		tokens = &models.ProviderTokens{
			AccessToken:  opts.accessToken,
			RefreshToken: opts.refreshToken,
			ExpiresIn:    opts.accessTTL,
		}
	}

	tok, err := svc.SignIn(ctx, identity, "tokengen", tokens)
	if err != nil {
		return err
	}
	codec, err := tokencodec.New(cfg.Secret, tokencodec.WithMaxAge(cfg.SessionMaxAge))
	if err != nil {
		return err
	}
	value, err := codec.Encode(tok)
	if err != nil {
		return err
	}

	result := tokenOutput{
		Cookie:    svc.CookieConfig().Names.SessionToken,
		Value:     value,
		SessionID: tok.SessionID,
		Roles:     tok.Roles,
		ExpiresIn: codec.MaxAge().String(),
	}
	if opts.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	_, err = fmt.Fprintf(out, "%s=%s\n", result.Cookie, result.Value)
	return err
}
