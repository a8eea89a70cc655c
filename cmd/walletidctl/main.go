package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"walletid/internal/identity/service"
	"walletid/internal/identity/store"
	jwttoken "walletid/internal/jwt_token"
	"walletid/internal/platform/config"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "walletidctl",
		Short:         "Operator tooling for the wallet identity store",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(statsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func tokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token [subject]",
		Short: "Mint an admin bearer token signed with ADMIN_JWT_SECRET",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			token, err := mintToken(cfg.Server.AdminJWTSecret, args[0], ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}

func mintToken(secret, subject string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("ADMIN_JWT_SECRET is not set")
	}
	if ttl <= 0 {
		return "", errors.New("ttl must be positive")
	}
	svc := jwttoken.NewJWTService(secret, jwttoken.AdminIssuer, jwttoken.AdminAudience)
	return svc.GenerateAdminToken(subject, ttl)
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the identity tables for the configured STORE_DRIVER",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			_, db, err := store.Open(cmd.Context(), cfg.Store)
			if err != nil {
				return err
			}
			if db != nil {
				defer db.Close()
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema ready (%s)\n", cfg.Store.Driver)
			return nil
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print identity coverage counts as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			s, db, err := store.Open(ctx, cfg.Store)
			if err != nil {
				return err
			}
			if db != nil {
				defer db.Close()
			}
			svc, err := service.New(s)
			if err != nil {
				return err
			}
			stats, err := svc.GetStats(ctx)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]int64{
				"total_wallets":  stats.TotalWallets,
				"with_twitter":   stats.WithTwitter,
				"with_farcaster": stats.WithFarcaster,
				"with_lens":      stats.WithLens,
				"with_github":    stats.WithGitHub,
			})
		},
	}
}
