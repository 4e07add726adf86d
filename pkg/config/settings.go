// Package config loads translator settings from a YAML file.
//
// Every field has a default, so a missing file or a file that sets only a
// few keys is valid. Settings also knows how to turn itself into the
// configuration types of the packages it tunes.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/entrhq/translator/pkg/cache"
	"github.com/entrhq/translator/pkg/channel"
	"github.com/entrhq/translator/pkg/channel/browserchan"
	"github.com/entrhq/translator/pkg/lease"
	"github.com/entrhq/translator/pkg/observe"
	"github.com/entrhq/translator/pkg/prompt"
	"github.com/entrhq/translator/pkg/scheduler"
	"github.com/entrhq/translator/pkg/worker"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultChatURL is the chat page driven by the browser channel.
	DefaultChatURL = "https://chat.deepseek.com/"

	// DefaultMaxContext bounds the LLM conversation, in tokens.
	DefaultMaxContext = 5000
)

// Settings represents the translator configuration file.
type Settings struct {
	// TargetLanguage is the language blocks are translated into.
	TargetLanguage string `yaml:"target_language"`

	// PromptPrefix replaces the built-in instructions of the first prompt.
	// It should end with "Input JSON:".
	PromptPrefix string `yaml:"prompt_prefix"`

	// Agent toggles applied once per Task.
	EnableDeepThink bool `yaml:"enable_deep_think"`
	EnableSearch    bool `yaml:"enable_search"`

	// StoreDir holds the shared Task and cache records.
	StoreDir string `yaml:"store_dir"`

	// Match limits status and monitor to origin URLs matching any pattern.
	Match []string `yaml:"match"`

	// Channel is the default agent channel: "llm" or "browser".
	Channel string `yaml:"channel"`

	Batch   BatchSettings   `yaml:"batch"`
	Timing  TimingSettings  `yaml:"timing"`
	Cache   CacheSettings   `yaml:"cache"`
	LLM     LLMSettings     `yaml:"llm"`
	Browser BrowserSettings `yaml:"browser"`
}

// BatchSettings bounds each batch sent to the agent.
type BatchSettings struct {
	MaxItems int `yaml:"max_items"`
	MaxChars int `yaml:"max_chars"`
}

// TimingSettings holds the loop and observation timings.
type TimingSettings struct {
	TickInterval     time.Duration `yaml:"tick_interval"`
	HeartbeatTimeout time.Duration `yaml:"heartbeat_timeout"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	ResponseTimeout  time.Duration `yaml:"response_timeout"`
	StableTicks      int           `yaml:"stable_ticks"`
	MinLength        int           `yaml:"min_length"`
}

// CacheSettings bounds the translation cache.
type CacheSettings struct {
	TTL      time.Duration `yaml:"ttl"`
	Capacity int           `yaml:"capacity"`
}

// LLMSettings configures the chat completions channel. Empty values fall
// back to flags and the environment, see BuildProvider.
type LLMSettings struct {
	Model         string `yaml:"model"`
	ReasonerModel string `yaml:"reasoner_model"`
	BaseURL       string `yaml:"base_url"`
	APIKey        string `yaml:"api_key"`
	MaxContext    int    `yaml:"max_context"`
}

// BrowserSettings configures the browser channel.
type BrowserSettings struct {
	ChatURL     string                `yaml:"chat_url"`
	UserDataDir string                `yaml:"user_data_dir"`
	Headless    bool                  `yaml:"headless"`
	Selectors   browserchan.Selectors `yaml:"selectors"`
}

// DefaultSettings returns settings with default values.
func DefaultSettings() *Settings {
	return &Settings{
		TargetLanguage:  prompt.DefaultLanguage,
		EnableDeepThink: true,
		EnableSearch:    false,
		StoreDir:        filepath.Join(homeDir(), ".translator", "store"),
		Match:           []string{"*"},
		Channel:         channel.NameLLM,
		Batch: BatchSettings{
			MaxItems: scheduler.DefaultMaxItems,
			MaxChars: scheduler.DefaultMaxChars,
		},
		Timing: TimingSettings{
			TickInterval:     lease.TickInterval,
			HeartbeatTimeout: lease.HeartbeatTimeout,
			PollInterval:     observe.DefaultPollInterval,
			ResponseTimeout:  observe.DefaultTimeout,
			StableTicks:      observe.DefaultStableTicks,
			MinLength:        observe.DefaultMinLength,
		},
		Cache: CacheSettings{
			TTL:      cache.DefaultTTL,
			Capacity: cache.DefaultCapacity,
		},
		LLM: LLMSettings{
			MaxContext: DefaultMaxContext,
		},
		Browser: BrowserSettings{
			ChatURL:     DefaultChatURL,
			UserDataDir: filepath.Join(homeDir(), ".translator", "browser"),
			Selectors:   browserchan.DefaultSelectors(),
		},
	}
}

// Validate checks that the settings are usable.
func (s *Settings) Validate() error {
	if strings.TrimSpace(s.TargetLanguage) == "" && strings.TrimSpace(s.PromptPrefix) == "" {
		return fmt.Errorf("target_language or prompt_prefix is required")
	}
	if s.StoreDir == "" {
		return fmt.Errorf("store_dir is required")
	}
	if s.Channel != channel.NameLLM && s.Channel != channel.NameBrowser {
		return fmt.Errorf("invalid channel: %s (must be %s or %s)", s.Channel, channel.NameLLM, channel.NameBrowser)
	}

	if s.Batch.MaxItems <= 0 {
		return fmt.Errorf("batch.max_items must be positive")
	}
	if s.Batch.MaxChars <= 0 {
		return fmt.Errorf("batch.max_chars must be positive")
	}

	t := s.Timing
	if t.TickInterval <= 0 || t.HeartbeatTimeout <= 0 || t.PollInterval <= 0 || t.ResponseTimeout <= 0 {
		return fmt.Errorf("timing intervals must be positive")
	}
	if t.HeartbeatTimeout <= t.TickInterval {
		return fmt.Errorf("timing.heartbeat_timeout (%s) must exceed timing.tick_interval (%s)", t.HeartbeatTimeout, t.TickInterval)
	}
	if t.ResponseTimeout <= t.PollInterval {
		return fmt.Errorf("timing.response_timeout (%s) must exceed timing.poll_interval (%s)", t.ResponseTimeout, t.PollInterval)
	}
	if t.StableTicks <= 0 || t.MinLength <= 0 {
		return fmt.Errorf("timing.stable_ticks and timing.min_length must be positive")
	}

	if s.Cache.TTL <= 0 || s.Cache.Capacity <= 0 {
		return fmt.Errorf("cache.ttl and cache.capacity must be positive")
	}
	if s.LLM.MaxContext < 0 {
		return fmt.Errorf("llm.max_context cannot be negative")
	}
	if s.Channel == channel.NameBrowser && s.Browser.ChatURL == "" {
		return fmt.Errorf("browser.chat_url is required for the browser channel")
	}
	return nil
}

// Preamble returns the instructions that open the first prompt of a Task.
func (s *Settings) Preamble() string {
	if strings.TrimSpace(s.PromptPrefix) != "" {
		return s.PromptPrefix
	}
	return prompt.DefaultPreamble(s.TargetLanguage)
}

// Features returns the agent toggles.
func (s *Settings) Features() channel.Features {
	return channel.Features{DeepThink: s.EnableDeepThink, Search: s.EnableSearch}
}

// Worker returns the tick loop configuration.
func (s *Settings) Worker() worker.Config {
	preamble := s.Preamble()
	cfg := worker.DefaultConfig(preamble)
	cfg.TickInterval = s.Timing.TickInterval
	cfg.Budget = scheduler.Budget{MaxItems: s.Batch.MaxItems, MaxChars: s.Batch.MaxChars}
	cfg.Observe.PollInterval = s.Timing.PollInterval
	cfg.Observe.Timeout = s.Timing.ResponseTimeout
	cfg.Observe.StableTicks = s.Timing.StableTicks
	cfg.Observe.MinLength = s.Timing.MinLength
	cfg.Features = s.Features()
	return cfg
}

// CacheOptions returns the cache bounds as engine options.
func (s *Settings) CacheOptions() []cache.Option {
	return []cache.Option{cache.WithTTL(s.Cache.TTL), cache.WithCapacity(s.Cache.Capacity)}
}

// LeaseOptions returns the heartbeat timeout as elector options.
func (s *Settings) LeaseOptions() []lease.Option {
	return []lease.Option{lease.WithTimeout(s.Timing.HeartbeatTimeout)}
}

// DefaultPath returns ~/.translator/settings.yaml.
func DefaultPath() string {
	return filepath.Join(homeDir(), ".translator", "settings.yaml")
}

// Load reads settings from path, or from DefaultPath when path is empty.
// Keys absent from the file keep their defaults; a missing file yields the
// defaults.
func Load(path string) (*Settings, error) {
	if path == "" {
		path = DefaultPath()
	}

	settings := DefaultSettings()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return settings, nil
		}
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	if err := yaml.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("failed to parse settings file: %w", err)
	}
	settings.StoreDir = expandHome(settings.StoreDir)
	settings.Browser.UserDataDir = expandHome(settings.Browser.UserDataDir)

	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings in %s: %w", path, err)
	}
	return settings, nil
}

// Save writes the settings to path atomically.
func (s *Settings) Save(path string) error {
	if path == "" {
		path = DefaultPath()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	// Create temp file for atomic write
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp settings file: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

func expandHome(path string) string {
	if path == "~" {
		return homeDir()
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}
