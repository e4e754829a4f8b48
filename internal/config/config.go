// Package config loads and validates the engagic TOML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration is a time.Duration that unmarshals from TOML strings like "60s" or "2m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the root configuration tree for the engagic daemon.
type Config struct {
	General    General               `toml:"general"`
	Paths      Paths                 `toml:"paths"`
	Sync       Sync                  `toml:"sync"`
	RateLimits map[string]VendorRate `toml:"vendor_rate_limits"`
	Queue      Queue                 `toml:"queue"`
	LLM        LLM                   `toml:"llm"`
	PDF        PDF                   `toml:"pdf"`
	API        API                   `toml:"api"`
}

// General holds process-wide settings.
type General struct {
	LogLevel               string `toml:"log_level"`
	LockFile               string `toml:"lock_file"`
	BackgroundProcessing   bool   `toml:"background_processing"`
}

// Paths locates the persisted-state directory and its files (spec §6).
type Paths struct {
	DBDir             string `toml:"db_dir"`
	MainDB            string `toml:"main_db"`            // relative to DBDir; default engagic.db
	RateLimitDB       string `toml:"rate_limit_db"`       // relative to DBDir; default rate_limits.db
	GranicusViewIDs   string `toml:"granicus_view_ids"`   // relative to DBDir; default granicus_view_ids.json
	UnknownTopicsLog  string `toml:"unknown_topics_log"`  // relative to DBDir; default unknown_topics.log
	TopicTaxonomyJSON string `toml:"topic_taxonomy_json"` // path to taxonomy JSON
	PromptsJSON       string `toml:"prompts_json"`        // path to LLM prompt templates
}

// Sync controls the background sync scheduler (spec §4.8).
type Sync struct {
	SyncInterval        Duration `toml:"sync_interval"`        // default 168h
	ProcessingInterval   Duration `toml:"processing_interval"` // default 48h
	VendorGroupCooldown Duration `toml:"vendor_group_cooldown"` // 30-40s between vendor groups
	MaxRetriesPerCity   int      `toml:"max_retries_per_city"`  // default 2
}

// VendorRate is the politeness floor for one vendor (spec §4.8 per-vendor minimum intervals).
type VendorRate struct {
	MinInterval Duration `toml:"min_interval"`
}

// Queue controls the processing-queue worker (spec §4.9).
type Queue struct {
	PollInterval      Duration `toml:"poll_interval"`
	DeadLetterRetries int      `toml:"dead_letter_retries"` // default 3
	BatchChunkSize    int      `toml:"batch_chunk_size"`    // default 15
}

// LLM configures the summarizer (spec §4.3).
type LLM struct {
	APIKeyEnv          string   `toml:"api_key_env"` // e.g. GEMINI_API_KEY
	LiteModel          string   `toml:"lite_model"`
	FlagshipModel      string   `toml:"flagship_model"`
	LiteMaxChars       int      `toml:"lite_max_chars"`       // default 200_000
	LiteMaxPages       int      `toml:"lite_max_pages"`       // default 50
	LargeItemPages     int      `toml:"large_item_pages"`     // default 100
	BatchPollInterval  Duration `toml:"batch_poll_interval"`  // default 10s
	BatchMaxWait       Duration `toml:"batch_max_wait"`       // default 30m
	BatchChunkCooldown Duration `toml:"batch_chunk_cooldown"` // default 90s
}

// PDF configures the extractor (spec §4.2).
type PDF struct {
	DownloadTimeout Duration `toml:"download_timeout"` // default 30s
	MaxBodyBytes    int64    `toml:"max_body_bytes"`    // default 100MB
	OCRThreshold    int      `toml:"ocr_threshold"`     // default 100 chars
	OCRDPI          int      `toml:"ocr_dpi"`           // default 300
}

// API configures the read-only search glue surface (out of core scope, spec §1).
type API struct {
	Bind            string   `toml:"bind"`
	AdminTokenEnv   string   `toml:"admin_token_env"`
	AllowedOrigins  []string `toml:"allowed_origins"`
	RateLimitWindow Duration `toml:"rate_limit_window"`
	RateLimitMax    int      `toml:"rate_limit_max"`
	MaxQueryLength  int      `toml:"max_query_length"`
	Security        APISecurity `toml:"security"`
}

// APISecurity gates the handful of admin endpoints (sync trigger, queue
// control) that mutate state rather than just reading it. The read-only
// search surface never consults this.
type APISecurity struct {
	Enabled           bool     `toml:"enabled"`
	RequireLocalOnly  bool     `toml:"require_local_only"`
	AllowedTokens     []string `toml:"-"` // populated from AdminTokenEnv, not TOML
	AuditLog          string   `toml:"audit_log"`
}

// ExpandHome expands a leading "~/" to the user's home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

// Default returns a config with every field at its spec-documented default.
func Default() *Config {
	return &Config{
		General: General{
			LogLevel:             "info",
			LockFile:             "~/.local/state/engagic/engagic.lock",
			BackgroundProcessing: true,
		},
		Paths: Paths{
			DBDir:             "~/.local/state/engagic",
			MainDB:            "engagic.db",
			RateLimitDB:       "rate_limits.db",
			GranicusViewIDs:   "granicus_view_ids.json",
			UnknownTopicsLog:  "unknown_topics.log",
			TopicTaxonomyJSON: "configs/topic_taxonomy.json",
			PromptsJSON:       "configs/prompts.json",
		},
		Sync: Sync{
			SyncInterval:        Duration{168 * time.Hour},
			ProcessingInterval:  Duration{48 * time.Hour},
			VendorGroupCooldown: Duration{35 * time.Second},
			MaxRetriesPerCity:   2,
		},
		RateLimits: map[string]VendorRate{
			"primegov":    {Duration{3 * time.Second}},
			"civicclerk":  {Duration{3 * time.Second}},
			"legistar":    {Duration{3 * time.Second}},
			"granicus":    {Duration{4 * time.Second}},
			"civicplus":   {Duration{4 * time.Second}},
			"novusagenda": {Duration{4 * time.Second}},
			"escribe":     {Duration{5 * time.Second}},
			"unknown":     {Duration{5 * time.Second}},
		},
		Queue: Queue{
			PollInterval:      Duration{5 * time.Second},
			DeadLetterRetries: 3,
			BatchChunkSize:    15,
		},
		LLM: LLM{
			APIKeyEnv:          "GEMINI_API_KEY",
			LiteModel:          "gemini-2.5-flash-lite",
			FlagshipModel:      "gemini-2.5-pro",
			LiteMaxChars:       200_000,
			LiteMaxPages:       50,
			LargeItemPages:     100,
			BatchPollInterval:  Duration{10 * time.Second},
			BatchMaxWait:       Duration{30 * time.Minute},
			BatchChunkCooldown: Duration{90 * time.Second},
		},
		PDF: PDF{
			DownloadTimeout: Duration{30 * time.Second},
			MaxBodyBytes:    100 * 1024 * 1024,
			OCRThreshold:    100,
			OCRDPI:          300,
		},
		API: API{
			Bind:            ":8089",
			AdminTokenEnv:   "ADMIN_TOKEN",
			RateLimitWindow: Duration{1 * time.Hour},
			RateLimitMax:    100,
			MaxQueryLength:  200,
			Security: APISecurity{
				Enabled:          true,
				RequireLocalOnly: true,
				AuditLog:         "~/.local/state/engagic/admin_audit.log",
			},
		},
	}
}

// Load reads and parses the TOML config at path, overlaying defaults, then
// applies the environment-variable overlay described in spec §6.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}
	applyEnvOverlay(cfg)
	if token := os.Getenv(cfg.API.AdminTokenEnv); token != "" {
		cfg.API.Security.AllowedTokens = []string{token}
	} else {
		cfg.API.Security.Enabled = false
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverlay(cfg *Config) {
	if v := os.Getenv("DB_DIR"); v != "" {
		cfg.Paths.DBDir = v
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.API.AllowedOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("RATE_LIMIT_REQUESTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.API.RateLimitMax = n
		}
	}
	if v := os.Getenv("RATE_LIMIT_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.API.RateLimitWindow = Duration{d}
		}
	}
	if v := os.Getenv("MAX_QUERY_LENGTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.API.MaxQueryLength = n
		}
	}
	if v := os.Getenv("SYNC_INTERVAL_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sync.SyncInterval = Duration{time.Duration(n) * time.Hour}
		}
	}
	if v := os.Getenv("PROCESSING_INTERVAL_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sync.ProcessingInterval = Duration{time.Duration(n) * time.Hour}
		}
	}
	if v := os.Getenv("BACKGROUND_PROCESSING"); v != "" {
		cfg.General.BackgroundProcessing = v == "1" || strings.EqualFold(v, "true")
	}
}

// Validate checks the config for internally-fatal problems (spec §7:
// "Configuration errors at startup: fatal").
func (c *Config) Validate() error {
	if c.Paths.DBDir == "" {
		return fmt.Errorf("config: paths.db_dir is required")
	}
	if c.Queue.DeadLetterRetries <= 0 {
		return fmt.Errorf("config: queue.dead_letter_retries must be positive")
	}
	if c.Queue.BatchChunkSize <= 0 {
		return fmt.Errorf("config: queue.batch_chunk_size must be positive")
	}
	return nil
}

// LLMAPIKey reads the configured LLM credential from the environment,
// falling back to LLM_API_KEY when the configured variable is unset. An
// empty return means the process degrades to read-only (spec §7).
func (c *Config) LLMAPIKey() string {
	name := c.LLM.APIKeyEnv
	if name == "" {
		name = "GEMINI_API_KEY"
	}
	if key := os.Getenv(name); key != "" {
		return key
	}
	return os.Getenv("LLM_API_KEY")
}

// AdminToken reads the configured admin token from the environment.
func (c *Config) AdminToken() string {
	if c.API.AdminTokenEnv == "" {
		return os.Getenv("ADMIN_TOKEN")
	}
	return os.Getenv(c.API.AdminTokenEnv)
}

// DBPath returns the absolute path to the main database file.
func (c *Config) DBPath() string {
	return filepath.Join(ExpandHome(c.Paths.DBDir), c.Paths.MainDB)
}

// RateLimitDBPath returns the absolute path to the rate-limit database file.
func (c *Config) RateLimitDBPath() string {
	return filepath.Join(ExpandHome(c.Paths.DBDir), c.Paths.RateLimitDB)
}

// GranicusViewIDsPath returns the absolute path to the view-id cache file.
func (c *Config) GranicusViewIDsPath() string {
	return filepath.Join(ExpandHome(c.Paths.DBDir), c.Paths.GranicusViewIDs)
}

// UnknownTopicsLogPath returns the absolute path to the unknown-topics log.
func (c *Config) UnknownTopicsLogPath() string {
	return filepath.Join(ExpandHome(c.Paths.DBDir), c.Paths.UnknownTopicsLog)
}

// VendorMinInterval returns the configured politeness floor for a vendor,
// falling back to the "unknown" entry (spec §4.8).
func (c *Config) VendorMinInterval(vendor string) time.Duration {
	if r, ok := c.RateLimits[vendor]; ok {
		return r.MinInterval.Duration
	}
	return c.RateLimits["unknown"].MinInterval.Duration
}

// Clone returns a deep-enough copy for safe concurrent snapshotting. Maps
// and slices are copied; nested structs are copied by value.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	clone.RateLimits = make(map[string]VendorRate, len(c.RateLimits))
	for k, v := range c.RateLimits {
		clone.RateLimits[k] = v
	}
	clone.API.AllowedOrigins = append([]string(nil), c.API.AllowedOrigins...)
	clone.API.Security.AllowedTokens = append([]string(nil), c.API.Security.AllowedTokens...)
	return &clone
}
