package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"voice-auth/internal/config"

	"github.com/spf13/cobra"
)

var databaseURL string

var rootCmd = &cobra.Command{
	Use:           "voicectl",
	Short:         "Administer a voice-auth deployment",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "postgres URL (default $DATABASE_URL, then DB_* variables)")
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
}

// resolveDatabaseURL picks the flag, then DATABASE_URL, then the DB_*
// variables. Only the DB_* group is read so the API's other required
// settings need not be present.
func resolveDatabaseURL() (string, error) {
	if databaseURL != "" {
		return databaseURL, nil
	}
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		return v, nil
	}

	cfg := config.Config{}
	cfg.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	cfg.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	cfg.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	cfg.DB.Password = os.Getenv("DB_PASSWORD")
	cfg.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	cfg.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))
	if cfg.DB.SSLMode == "" {
		cfg.DB.SSLMode = "disable"
	}
	port, err := strconv.Atoi(strings.TrimSpace(os.Getenv("DB_PORT")))
	if err != nil {
		port = 5432
	}
	cfg.DB.Port = port

	if cfg.DB.Host == "" || cfg.DB.User == "" || cfg.DB.Name == "" {
		return "", errors.New("no database configured: pass --database-url or set DATABASE_URL or DB_HOST, DB_USER and DB_NAME")
	}
	return cfg.PostgresURL(), nil
}

func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
