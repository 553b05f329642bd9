package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/templui/refinekit/internal/db"
	"github.com/templui/refinekit/internal/kv"
	"github.com/templui/refinekit/internal/repository"
)

func TokensCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Password reset token maintenance",
	}

	cmd.AddCommand(tokensCleanupCmd())
	return cmd
}

func tokensCleanupCmd() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete reset tokens that expired or were used",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, conn, err := setup()
			if err != nil {
				return err
			}
			defer db.Close(conn)

			var tokens repository.ResetTokenRepository
			if cfg.TokenStore == "redis" {
				handle := kv.New(cfg.RedisURL)
				defer handle.Close()
				tokens = repository.NewRedisResetTokenRepository(handle)
			} else {
				tokens = repository.NewResetTokenRepository(conn)
			}

			removed, err := tokens.CleanupExpired(cmd.Context(), olderThan)
			if errors.Is(err, repository.ErrExpiresByTTL) {
				fmt.Fprintln(cmd.OutOrStdout(), "redis store: reset tokens expire by TTL, nothing to clean up")
				return nil
			}
			if err != nil {
				return fmt.Errorf("cleanup tokens: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d tokens from %s store\n", removed, cfg.TokenStore)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 24*time.Hour, "Only remove tokens that expired or were used at least this long ago")
	return cmd
}
