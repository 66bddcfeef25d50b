// Package config provides configuration utilities for the application.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/tallyprep/tallyprep/internal/export"
	"github.com/tallyprep/tallyprep/internal/matching"
	"github.com/tallyprep/tallyprep/internal/session"
)

// MatchingConfig loads the scoring policy from Viper, falling back to the
// engine defaults. Weights and thresholds are tunable policy.
func MatchingConfig() matching.Config {
	cfg := matching.DefaultConfig()

	if v := viper.GetFloat64("matching.token_weight"); v > 0 {
		cfg.TokenWeight = v
	}
	if v := viper.GetFloat64("matching.edit_weight"); v > 0 {
		cfg.EditWeight = v
	}
	if v := viper.GetFloat64("matching.auto_threshold"); v > 0 {
		cfg.AutoThreshold = v
	}
	if v := viper.GetFloat64("matching.review_threshold"); v > 0 {
		cfg.ReviewThreshold = v
	}
	if v := viper.GetInt("matching.max_candidates"); v > 0 {
		cfg.MaxCandidates = v
	}

	return cfg
}

// PageSize returns the candidate page size for manual matching.
func PageSize() int {
	if v := viper.GetInt("matching.page_size"); v > 0 {
		return v
	}
	return 5
}

// SessionConfig loads session lifetime policy.
func SessionConfig() session.StoreConfig {
	cfg := session.DefaultStoreConfig()

	if v := viper.GetDuration("session.ttl"); v > 0 {
		cfg.TTL = v
	}
	if v := viper.GetDuration("session.sweep_interval"); v > 0 {
		cfg.SweepInterval = v
	}

	return cfg
}

// CatalogDBPath returns the catalog database location, defaulting under the
// user config directory.
func CatalogDBPath() string {
	if v := viper.GetString("catalog.db_path"); v != "" {
		return expandPath(v)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "catalog.db"
	}
	return filepath.Join(home, ".config", "tallyprep", "catalog.db")
}

// SheetsConfig loads Google Sheets configuration from Viper and environment
// variables. Precedence: Viper (config file or TALLYPREP_ env), then direct
// GOOGLE_SHEETS_* variables, then defaults.
func SheetsConfig() (export.SheetsConfig, error) {
	cfg := export.DefaultSheetsConfig()

	if v := viper.GetString("sheets.service_account_path"); v != "" {
		cfg.ServiceAccountPath = expandPath(v)
	}
	if v := viper.GetString("sheets.client_id"); v != "" {
		cfg.ClientID = v
	}
	if v := viper.GetString("sheets.client_secret"); v != "" {
		cfg.ClientSecret = v
	}
	if v := viper.GetString("sheets.refresh_token"); v != "" {
		cfg.RefreshToken = v
	}
	if v := viper.GetString("sheets.spreadsheet_id"); v != "" {
		cfg.SpreadsheetID = v
	}
	if v := viper.GetString("sheets.spreadsheet_name"); v != "" {
		cfg.SpreadsheetName = v
	}
	if v := viper.GetDuration("sheets.retry_delay"); v > 0 {
		cfg.RetryDelay = v
	}

	if cfg.ServiceAccountPath == "" {
		if v := os.Getenv("GOOGLE_SHEETS_SERVICE_ACCOUNT_PATH"); v != "" {
			cfg.ServiceAccountPath = expandPath(v)
		}
	}
	if cfg.ClientID == "" {
		cfg.ClientID = os.Getenv("GOOGLE_SHEETS_CLIENT_ID")
	}
	if cfg.ClientSecret == "" {
		cfg.ClientSecret = os.Getenv("GOOGLE_SHEETS_CLIENT_SECRET")
	}
	if cfg.RefreshToken == "" {
		cfg.RefreshToken = os.Getenv("GOOGLE_SHEETS_REFRESH_TOKEN")
	}
	if cfg.SpreadsheetID == "" {
		cfg.SpreadsheetID = os.Getenv("GOOGLE_SHEETS_SPREADSHEET_ID")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// expandPath expands a leading ~ to the user home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
