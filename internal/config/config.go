// Package config provides YAML-based configuration loading for Marquee.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zulandar/marquee/internal/identity"
	"github.com/zulandar/marquee/internal/models"
	"gopkg.in/yaml.v3"
)

// Config is the top-level Marquee configuration, loaded from config.yaml.
type Config struct {
	DataDir       string              `yaml:"data_dir"`
	Storage       StorageConfig       `yaml:"storage"`
	Server        ServerConfig        `yaml:"server"`
	Session       SessionConfig       `yaml:"session"`
	Requests      RequestsConfig      `yaml:"requests"`
	Quota         QuotaConfig         `yaml:"quota"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Radarr        ArrConfig           `yaml:"radarr"`
	Sonarr        SonarrConfig        `yaml:"sonarr"`
	Parser        ParserConfig        `yaml:"parser"`
	Platforms     PlatformsConfig     `yaml:"platforms"`
	Users         []UserConfig        `yaml:"users"`
	Shutdown      ShutdownConfig      `yaml:"shutdown"`
}

// StorageConfig selects where requests and users are kept.
type StorageConfig struct {
	Driver string      `yaml:"driver"` // json, sqlite or mysql
	Path   string      `yaml:"path"`   // sqlite file
	MySQL  MySQLConfig `yaml:"mysql"`
}

// MySQLConfig holds connection settings for a MySQL server.
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Port     int    `yaml:"port"`
	APIToken string `yaml:"api_token"`
}

// SessionConfig configures conversation sessions.
type SessionConfig struct {
	TimeoutSec       int `yaml:"timeout_sec"`
	SweepIntervalSec int `yaml:"sweep_interval_sec"`
}

// RequestsConfig configures the request ledger and searches.
type RequestsConfig struct {
	RetentionDays        int    `yaml:"retention_days"`
	PruneCron            string `yaml:"prune_cron"`
	ReconcileIntervalSec int    `yaml:"reconcile_interval_sec"`
	MaxResults           int    `yaml:"max_results"`
}

// QuotaConfig is the request limit policy. A limit of 0 means unlimited.
type QuotaConfig struct {
	Period       string `yaml:"period"`
	MovieLimit   int    `yaml:"movie_limit"`
	TVLimit      int    `yaml:"tv_limit"`
	ExemptAdmins *bool  `yaml:"exempt_admins"`
}

// NotificationsConfig configures completion messages.
type NotificationsConfig struct {
	Enabled       *bool  `yaml:"enabled"`
	Template      string `yaml:"template"`
	WebhookSecret string `yaml:"webhook_secret"`
}

// ArrConfig points at one Radarr or Sonarr instance.
type ArrConfig struct {
	URL              string `yaml:"url"`
	APIKey           string `yaml:"api_key"`
	QualityProfileID int    `yaml:"quality_profile_id"`
	RootFolder       string `yaml:"root_folder"`
	Tags             []int  `yaml:"tags"`
	TimeoutSec       int    `yaml:"timeout_sec"`
}

// Configured reports whether the instance has a URL.
func (a ArrConfig) Configured() bool { return a.URL != "" }

// SonarrConfig adds the anime library settings.
type SonarrConfig struct {
	ArrConfig             `yaml:",inline"`
	AnimeRootFolder       string `yaml:"anime_root_folder"`
	AnimeQualityProfileID int    `yaml:"anime_quality_profile_id"`
}

// ParserConfig selects the intent parser.
type ParserConfig struct {
	Kind       string `yaml:"kind"` // rules or anthropic
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// PlatformsConfig holds one section per chat platform.
type PlatformsConfig struct {
	SMS      SMSConfig      `yaml:"sms"`
	Discord  DiscordConfig  `yaml:"discord"`
	Slack    SlackConfig    `yaml:"slack"`
	Telegram TelegramConfig `yaml:"telegram"`
}

// SMSConfig configures the Twilio-compatible SMS adapter.
type SMSConfig struct {
	Enabled    bool   `yaml:"enabled"`
	AccountSID string `yaml:"account_sid"`
	AuthToken  string `yaml:"auth_token"`
	FromNumber string `yaml:"from_number"`
	BaseURL    string `yaml:"base_url"`
}

// DiscordConfig configures the Discord adapter.
type DiscordConfig struct {
	Enabled   bool   `yaml:"enabled"`
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// SlackConfig configures the Slack adapter.
type SlackConfig struct {
	Enabled   bool   `yaml:"enabled"`
	BotToken  string `yaml:"bot_token"`
	AppToken  string `yaml:"app_token"`
	ChannelID string `yaml:"channel_id"`
}

// TelegramConfig configures the Telegram adapter.
type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
}

// UserConfig seeds one user. Identities maps a platform name to the raw id
// on that platform.
type UserConfig struct {
	ID            string            `yaml:"id"`
	Name          string            `yaml:"name"`
	Admin         bool              `yaml:"admin"`
	Notifications *bool             `yaml:"notifications"`
	Identities    map[string]string `yaml:"identities"`
}

// ShutdownConfig bounds graceful shutdown.
type ShutdownConfig struct {
	DrainTimeoutSec int `yaml:"drain_timeout_sec"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "json"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "marquee.db")
	}
	if c.Storage.MySQL.Host == "" {
		c.Storage.MySQL.Host = "127.0.0.1"
	}
	if c.Storage.MySQL.Port == 0 {
		c.Storage.MySQL.Port = 3306
	}
	if c.Storage.MySQL.Database == "" {
		c.Storage.MySQL.Database = "marquee"
	}
	if c.Storage.MySQL.User == "" {
		c.Storage.MySQL.User = "root"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Session.TimeoutSec == 0 {
		c.Session.TimeoutSec = 300
	}
	if c.Session.SweepIntervalSec == 0 {
		c.Session.SweepIntervalSec = 120
	}
	if c.Requests.RetentionDays == 0 {
		c.Requests.RetentionDays = 30
	}
	if c.Requests.PruneCron == "" {
		c.Requests.PruneCron = "0 4 * * *"
	}
	if c.Requests.ReconcileIntervalSec == 0 {
		c.Requests.ReconcileIntervalSec = 300
	}
	if c.Requests.MaxResults == 0 {
		c.Requests.MaxResults = 5
	}
	if c.Quota.Period == "" {
		c.Quota.Period = "weekly"
	}
	c.Quota.Period = strings.ToLower(c.Quota.Period)
	if c.Quota.ExemptAdmins == nil {
		c.Quota.ExemptAdmins = boolPtr(true)
	}
	if c.Notifications.Enabled == nil {
		c.Notifications.Enabled = boolPtr(true)
	}
	if c.Parser.Kind == "" {
		c.Parser.Kind = "rules"
	}
	if c.Parser.APIKey == "" {
		c.Parser.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if c.Parser.TimeoutSec == 0 {
		c.Parser.TimeoutSec = 10
	}
	if c.Radarr.TimeoutSec == 0 {
		c.Radarr.TimeoutSec = 15
	}
	if c.Sonarr.TimeoutSec == 0 {
		c.Sonarr.TimeoutSec = 15
	}
	if c.Sonarr.AnimeRootFolder != "" && c.Sonarr.AnimeQualityProfileID == 0 {
		c.Sonarr.AnimeQualityProfileID = c.Sonarr.QualityProfileID
	}
	if c.Shutdown.DrainTimeoutSec == 0 {
		c.Shutdown.DrainTimeoutSec = 10
	}
}

func boolPtr(b bool) *bool { return &b }

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Storage.Driver {
	case "json", "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("storage.driver %q must be json, sqlite or mysql", c.Storage.Driver))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if c.Session.TimeoutSec < 0 || c.Session.SweepIntervalSec < 0 {
		errs = append(errs, "session durations must not be negative")
	}
	if c.Requests.RetentionDays < 0 {
		errs = append(errs, "requests.retention_days must not be negative")
	}
	if _, err := cron.ParseStandard(c.Requests.PruneCron); err != nil {
		errs = append(errs, fmt.Sprintf("requests.prune_cron %q: %v", c.Requests.PruneCron, err))
	}
	if c.Requests.MaxResults < 0 || c.Requests.MaxResults > 20 {
		errs = append(errs, "requests.max_results must be between 1 and 20")
	}
	switch c.Quota.Period {
	case "daily", "weekly", "monthly":
	default:
		errs = append(errs, fmt.Sprintf("quota.period %q must be daily, weekly or monthly", c.Quota.Period))
	}
	if c.Quota.MovieLimit < 0 || c.Quota.TVLimit < 0 {
		errs = append(errs, "quota limits must not be negative")
	}
	errs = append(errs, validateArr("radarr", c.Radarr)...)
	errs = append(errs, validateArr("sonarr", c.Sonarr.ArrConfig)...)
	if c.Sonarr.AnimeRootFolder != "" && !c.Sonarr.Configured() {
		errs = append(errs, "sonarr.anime_root_folder requires sonarr.url")
	}
	switch c.Parser.Kind {
	case "rules":
	case "anthropic":
		if c.Parser.APIKey == "" {
			errs = append(errs, "parser.api_key (or ANTHROPIC_API_KEY) is required for the anthropic parser")
		}
	default:
		errs = append(errs, fmt.Sprintf("parser.kind %q must be rules or anthropic", c.Parser.Kind))
	}
	errs = append(errs, c.validatePlatforms()...)
	errs = append(errs, c.validateUsers()...)
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateArr(name string, a ArrConfig) []string {
	if !a.Configured() {
		return nil
	}
	var errs []string
	if u, err := url.Parse(a.URL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("%s.url %q is not an absolute URL", name, a.URL))
	}
	if a.APIKey == "" {
		errs = append(errs, name+".api_key is required")
	}
	if a.RootFolder == "" {
		errs = append(errs, name+".root_folder is required")
	}
	if a.QualityProfileID <= 0 {
		errs = append(errs, name+".quality_profile_id is required")
	}
	return errs
}

func (c *Config) validatePlatforms() []string {
	var errs []string
	p := c.Platforms
	if p.SMS.Enabled {
		if p.SMS.AccountSID == "" || p.SMS.AuthToken == "" || p.SMS.FromNumber == "" {
			errs = append(errs, "platforms.sms requires account_sid, auth_token and from_number")
		}
	}
	if p.Discord.Enabled && p.Discord.BotToken == "" {
		errs = append(errs, "platforms.discord.bot_token is required")
	}
	if p.Slack.Enabled && (p.Slack.BotToken == "" || p.Slack.AppToken == "") {
		errs = append(errs, "platforms.slack requires bot_token and app_token")
	}
	if p.Telegram.Enabled && p.Telegram.BotToken == "" {
		errs = append(errs, "platforms.telegram.bot_token is required")
	}
	return errs
}

func (c *Config) validateUsers() []string {
	var errs []string
	seen := make(map[string]bool)
	for i, u := range c.Users {
		if u.ID == "" {
			errs = append(errs, fmt.Sprintf("users[%d].id is required", i))
			continue
		}
		if seen[u.ID] {
			errs = append(errs, fmt.Sprintf("users[%d].id %q is duplicated", i, u.ID))
		}
		seen[u.ID] = true
		for platform, raw := range u.Identities {
			if _, err := identity.Build(identity.Platform(platform), raw); err != nil {
				errs = append(errs, fmt.Sprintf("users[%d].identities.%s is invalid", i, platform))
			}
		}
	}
	return errs
}

// SessionTimeout returns the idle session timeout.
func (c *Config) SessionTimeout() time.Duration {
	return time.Duration(c.Session.TimeoutSec) * time.Second
}

// SweepInterval returns the session eviction interval.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Session.SweepIntervalSec) * time.Second
}

// ReconcileInterval returns the pending-request poll interval. A negative
// reconcile_interval_sec disables polling and yields 0.
func (c *Config) ReconcileInterval() time.Duration {
	if c.Requests.ReconcileIntervalSec < 0 {
		return 0
	}
	return time.Duration(c.Requests.ReconcileIntervalSec) * time.Second
}

// DrainTimeout bounds how long shutdown waits for in-flight turns.
func (c *Config) DrainTimeout() time.Duration {
	return time.Duration(c.Shutdown.DrainTimeoutSec) * time.Second
}

// SeedUsers converts the users section to models. Notifications default on.
func (c *Config) SeedUsers() []models.User {
	out := make([]models.User, 0, len(c.Users))
	for _, u := range c.Users {
		notify := true
		if u.Notifications != nil {
			notify = *u.Notifications
		}
		ids := make(map[string]string, len(u.Identities))
		for k, v := range u.Identities {
			ids[k] = v
		}
		out = append(out, models.User{
			ID:                   u.ID,
			Name:                 u.Name,
			Admin:                u.Admin,
			Identities:           ids,
			NotificationsEnabled: notify,
		})
	}
	return out
}
