// Package config loads trackbridge settings from a config file, the
// environment and an optional TOML user-mapping file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/trackbridge/trackbridge/internal/github"
	"github.com/trackbridge/trackbridge/internal/identity"
	"github.com/trackbridge/trackbridge/internal/labels"
	"github.com/trackbridge/trackbridge/internal/migrate"
	"github.com/trackbridge/trackbridge/internal/ratelimit"
	"github.com/trackbridge/trackbridge/internal/reconcile"
	"github.com/trackbridge/trackbridge/internal/translate"
)

// EnvPrefix namespaces environment overrides: source.login is read from
// TRACKBRIDGE_SOURCE_LOGIN.
const EnvPrefix = "TRACKBRIDGE"

// DefaultEnvFile holds secrets kept out of the config file.
const DefaultEnvFile = ".env"

// DefaultConfigName is looked up in the working directory when no file is
// given explicitly. Any extension viper understands works.
const DefaultConfigName = "trackbridge"

// Source holds the GForge connection.
type Source struct {
	Endpoint  string
	Namespace string
	Login     string
	Password  string
	Project   string
	ItemURL   string // Link template with {project} and {id}
	PageSize  int
}

// Target holds the GitHub connection.
type Target struct {
	Endpoint string
	Token    string
	Repo     string // "owner/name" or bare "name"
}

// Migrate holds the reconciliation settings.
type Migrate struct {
	SkipFloor       int
	SpareRequests   int
	SystemUserID    int
	SystemUserName  string
	ExtraFieldSkip  []string
	ImportedLabel   string
	LabelColor      string
	StrictNumbering bool
	PrewarmLabels   bool
	Trackers        []int
}

// Config is the fully resolved configuration.
type Config struct {
	Source  Source
	Target  Target
	Migrate Migrate

	// Users maps source unix names to target logins.
	Users map[string]string

	// File is the config file that was read, if any.
	File string
}

// MissingKeysError lists every required key that has no value.
type MissingKeysError struct {
	Keys []string
}

func (e *MissingKeysError) Error() string {
	return fmt.Sprintf("missing required configuration: %s", strings.Join(e.Keys, ", "))
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source.namespace", "http://gforge.org/")
	v.SetDefault("source.item_url", translate.DefaultLinkTemplate)
	v.SetDefault("source.page_size", migrate.DefaultPageSize)
	v.SetDefault("target.endpoint", github.DefaultAPIEndpoint)
	v.SetDefault("migrate.skip_floor", reconcile.DefaultFloor)
	v.SetDefault("migrate.spare_requests", ratelimit.DefaultSpare)
	v.SetDefault("migrate.system_user_id", identity.DefaultSystemUserID)
	v.SetDefault("migrate.system_user_name", identity.DefaultSystemUserName)
	v.SetDefault("migrate.extra_field_skip", translate.DefaultSkipValues)
	v.SetDefault("migrate.imported_label", translate.DefaultImportedLabel)
	v.SetDefault("migrate.label_color", labels.DefaultColor)
	v.SetDefault("migrate.strict_numbering", false)
	v.SetDefault("migrate.prewarm_labels", true)
	v.SetDefault("migrate.trackers", []int{})
}

// New returns a viper instance with defaults and environment bindings, ready
// for flags to be bound before Load reads it.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The conventional token variable works too.
	_ = v.BindEnv("target.token", EnvPrefix+"_TARGET_TOKEN", "GITHUB_TOKEN")
	return v
}

// Load reads path (or ./trackbridge.* when path is empty) into v and
// resolves the configuration. A missing default file is not an error.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(DefaultConfigName)
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{
		File: v.ConfigFileUsed(),
		Source: Source{
			Endpoint:  v.GetString("source.endpoint"),
			Namespace: v.GetString("source.namespace"),
			Login:     v.GetString("source.login"),
			Password:  v.GetString("source.password"),
			Project:   v.GetString("source.project"),
			ItemURL:   v.GetString("source.item_url"),
			PageSize:  v.GetInt("source.page_size"),
		},
		Target: Target{
			Endpoint: v.GetString("target.endpoint"),
			Token:    v.GetString("target.token"),
			Repo:     v.GetString("target.repo"),
		},
		Migrate: Migrate{
			SkipFloor:       v.GetInt("migrate.skip_floor"),
			SpareRequests:   v.GetInt("migrate.spare_requests"),
			SystemUserID:    v.GetInt("migrate.system_user_id"),
			SystemUserName:  v.GetString("migrate.system_user_name"),
			ExtraFieldSkip:  v.GetStringSlice("migrate.extra_field_skip"),
			ImportedLabel:   v.GetString("migrate.imported_label"),
			LabelColor:      v.GetString("migrate.label_color"),
			StrictNumbering: v.GetBool("migrate.strict_numbering"),
			PrewarmLabels:   v.GetBool("migrate.prewarm_labels"),
			Trackers:        v.GetIntSlice("migrate.trackers"),
		},
		Users: make(map[string]string),
	}

	for name, login := range v.GetStringMapString("users.mapping") {
		cfg.Users[name] = login
	}
	if file := v.GetString("users.mapping_file"); file != "" {
		if !filepath.IsAbs(file) && cfg.File != "" {
			file = filepath.Join(filepath.Dir(cfg.File), file)
		}
		users, err := LoadUserMapping(file)
		if err != nil {
			return nil, err
		}
		for name, login := range users {
			cfg.Users[name] = login
		}
	}
	return cfg, nil
}

// LoadDotEnv exports the variables of a dotenv file into the process
// environment so that TRACKBRIDGE_* secrets can live outside the config
// file. Variables already set win. A missing file is only an error when
// required is true.
func LoadDotEnv(path string, required bool) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if !required && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read env file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to parse env file %s: %w", path, err)
	}
	return nil
}

// LoadUserMapping reads the [users] table of a TOML file. Keys keep their
// case, which viper's own maps do not.
func LoadUserMapping(path string) (map[string]string, error) {
	data, err := os.ReadFile(path) // #nosec G304 - mapping file path from config
	if err != nil {
		return nil, fmt.Errorf("failed to read user mapping: %w", err)
	}
	var file struct {
		Users map[string]string `toml:"users"`
	}
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse user mapping %s: %w", path, err)
	}
	if file.Users == nil {
		return map[string]string{}, nil
	}
	return file.Users, nil
}

// Validate reports every missing required key at once. requireSource is
// false for commands that only talk to the target.
func (c *Config) Validate(requireSource bool) error {
	var missing []string
	check := func(key, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, key)
		}
	}
	if requireSource {
		check("source.endpoint", c.Source.Endpoint)
		check("source.login", c.Source.Login)
		check("source.password", c.Source.Password)
		check("source.project", c.Source.Project)
	}
	check("target.token", c.Target.Token)
	check("target.repo", c.Target.Repo)
	if len(missing) > 0 {
		sort.Strings(missing)
		return &MissingKeysError{Keys: missing}
	}

	if c.Source.PageSize <= 0 {
		return fmt.Errorf("source.page_size must be positive, got %d", c.Source.PageSize)
	}
	if c.Migrate.SkipFloor < 1 {
		return fmt.Errorf("migrate.skip_floor must be at least 1, got %d", c.Migrate.SkipFloor)
	}
	return nil
}

// RunConfig converts the settings for migrate.New.
func (c *Config) RunConfig() migrate.Config {
	return migrate.Config{
		Identity: identity.Config{
			Mapping:        c.Users,
			SystemUserID:   c.Migrate.SystemUserID,
			SystemUserName: c.Migrate.SystemUserName,
		},
		Translate: translate.Config{
			Project:       c.Source.Project,
			LinkTemplate:  c.Source.ItemURL,
			ImportedLabel: c.Migrate.ImportedLabel,
			LabelColor:    c.Migrate.LabelColor,
			SkipValues:    c.Migrate.ExtraFieldSkip,
		},
		Floor:           c.Migrate.SkipFloor,
		Spare:           c.Migrate.SpareRequests,
		StrictNumbering: c.Migrate.StrictNumbering,
		PageSize:        c.Source.PageSize,
		Trackers:        c.Migrate.Trackers,
		PrewarmLabels:   c.Migrate.PrewarmLabels,
	}
}
