package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"studio/internal/infra"
	"studio/internal/infra/credentials"
)

var (
	keyValue string
	keyLabel string
)

var keyCmd = &cobra.Command{
	Use:   "set-key",
	Short: "Store the backend API key in the database",
	Long:  "Stores the generation backend API key in integration_tokens. serve and generate fall back to it when BACKEND_API_KEY is unset.",
	RunE:  runSetKey,
}

func init() {
	keyCmd.Flags().StringVar(&keyValue, "key", "", "backend API key (falls back to BACKEND_API_KEY)")
	keyCmd.Flags().StringVar(&keyLabel, "label", "", "optional label kept with the key")
	rootCmd.AddCommand(keyCmd)
}

func runSetKey(cmd *cobra.Command, _ []string) error {
	key := strings.TrimSpace(keyValue)
	if key == "" {
		key = strings.TrimSpace(os.Getenv("BACKEND_API_KEY"))
	}
	if key == "" {
		return fmt.Errorf("backend API key is required via --key or BACKEND_API_KEY")
	}
	cfg := &infra.Config{DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL"))}
	if !cfg.GalleryEnabled() {
		return fmt.Errorf("DATABASE_URL is required")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
	defer cancel()
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "set-key").Logger()
	store := credentials.NewStore(infra.NewSQLRunner(pool, logger))
	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("credentials schema: %w", err)
	}
	if err := store.SetBackendAPIKey(ctx, key, keyLabel); err != nil {
		return fmt.Errorf("persist backend api key: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "backend api key stored")
	return nil
}
