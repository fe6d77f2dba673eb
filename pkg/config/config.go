/*
Package config manages the TOML config of the kanaserve services.
*/
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bastiangx/kanaserve/internal/utils"
	"github.com/bastiangx/kanaserve/pkg/history"
	"github.com/bastiangx/kanaserve/pkg/rerank"
	"github.com/charmbracelet/log"
)

// Config holds the entire config structure
type Config struct {
	Server     ServerConfig     `toml:"server"`
	History    HistoryConfig    `toml:"history"`
	Prediction PredictionConfig `toml:"prediction"`
	Dict       DictConfig       `toml:"dict"`
}

// ServerConfig has IPC related options.
type ServerConfig struct {
	// Mode is "desktop" or "mixed".
	Mode        string `toml:"mode"`
	MaxLimit    int    `toml:"max_limit"`
	MaxKeyLen   int    `toml:"max_key_len"`
	MetricsAddr string `toml:"metrics_addr"`
}

// HistoryConfig holds the user history options. Zero values fall back to the
// history package defaults.
type HistoryConfig struct {
	CacheStoreSize          int    `toml:"cache_store_size"`
	StoreCapacity           int    `toml:"store_capacity"`
	EntryLifetimeDays       int    `toml:"entry_lifetime_days"`
	MaxSuggestionTrial      int    `toml:"max_suggestion_trial"`
	MaxPredictionCandidates int    `toml:"max_prediction_candidates"`
	MaxZeroQueryCandidates  int    `toml:"max_zero_query_candidates"`
	MaxCharCoverage         int    `toml:"max_char_coverage"`
	TypingCorrectionSize    int    `toml:"typing_correction_size"`
	StorageFile             string `toml:"storage_file"`
	PassphraseEnv           string `toml:"passphrase_env"`
}

// PredictionConfig holds the dictionary reranking options.
type PredictionConfig struct {
	SuggestionSize             int  `toml:"suggestion_size"`
	MaxCandidates              int  `toml:"max_candidates"`
	MaxCharCoverage            int  `toml:"max_char_coverage"`
	ConsistencyMaxCostDiff     int  `toml:"consistency_max_cost_diff"`
	SuffixTransitionThreshold  int  `toml:"suffix_transition_threshold"`
	UserDictionaryDiscount     int  `toml:"user_dictionary_discount"`
	MaxTypingCorrectionResults int  `toml:"max_typing_correction_results"`
	UseTypingCorrection        bool `toml:"use_typing_correction"`
	AutoPartialSuggestion      bool `toml:"auto_partial_suggestion"`
}

// DictConfig holds dictionary options.
type DictConfig struct {
	DataDir        string `toml:"data_dir"`
	MaxWords       int    `toml:"max_words"`
	ChunkSize      int    `toml:"chunk_size"`
	MatrixFile     string `toml:"matrix_file"`
	PosFile        string `toml:"pos_file"`
	UserDictionary string `toml:"user_dictionary"`
}

// GetConfigDir returns the config directory with fallback priority:
// 1. ~/.config/kanaserve (or $XDG_CONFIG_HOME/kanaserve)
// 2. ~/Library/Application Support/kanaserve (macOS)
// 3. Current executable dir
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Errorf("Failed to get home directory: %v", err)
		return utils.GetExecutableDir()
	}
	primaryPath := filepath.Join(homeDir, ".config", "kanaserve")
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		primaryPath = filepath.Join(xdg, "kanaserve")
	}
	if result := utils.CheckDirStatus(primaryPath); result.Writable {
		return primaryPath, nil
	}
	macOSPath := filepath.Join(homeDir, "Library", "Application Support", "kanaserve")
	if result := utils.CheckDirStatus(macOSPath); result.Writable {
		return macOSPath, nil
	}
	execDir, err := utils.GetExecutableDir()
	if err != nil {
		log.Errorf("Failed to get executable directory: %v", err)
		return "", err
	}
	return execDir, nil
}

// GetDefaultConfigPath returns the default path for config.toml
func GetDefaultConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.toml"), nil
}

// LoadConfigWithPriority loads config with priority:
// 1. Custom path from --config flag
// 2. Default path: [UserConfigDir]/kanaserve/config.toml
// 3. Builtin defaults
func LoadConfigWithPriority(customConfigPath string) (*Config, string, error) {
	if customConfigPath != "" {
		if _, statErr := os.Stat(customConfigPath); statErr == nil {
			config, err := LoadConfig(customConfigPath)
			if err == nil {
				log.Debugf("Loaded config from custom path: %s", customConfigPath)
				return config, customConfigPath, nil
			}
			log.Warnf("Failed to load custom config from %s: %v. Trying default path...", customConfigPath, err)
		} else {
			log.Warnf("Custom config file not found at %s: %v. Trying default path...", customConfigPath, statErr)
		}
	}
	defaultPath, err := GetDefaultConfigPath()
	if err != nil {
		log.Warnf("Failed to determine default config path: %v. Using built-in defaults...", err)
		return DefaultConfig(), "", nil
	}
	config, err := InitConfig(defaultPath)
	if err != nil {
		log.Warnf("Failed to load/create config at %s: %v. Using builtin defaults...", defaultPath, err)
		return DefaultConfig(), "", nil
	}
	log.Debugf("Loaded config from default path: %s", defaultPath)
	return config, defaultPath, nil
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Mode:      "desktop",
			MaxLimit:  100,
			MaxKeyLen: 64,
		},
		History: HistoryConfig{
			StoreCapacity:           history.DefaultStoreCapacity,
			EntryLifetimeDays:       history.DefaultEntryLifetimeDays,
			MaxPredictionCandidates: history.DefaultMaxPredictionCandidates,
			MaxZeroQueryCandidates:  history.DefaultMaxZeroQueryCandidates,
			StorageFile:             "history.db",
			PassphraseEnv:           "KANASERVE_PASSPHRASE",
		},
		Prediction: PredictionConfig{
			SuggestionSize:             3,
			MaxCandidates:              rerank.DefaultMaxCandidates,
			UserDictionaryDiscount:     rerank.DefaultUserDictionaryDiscount,
			MaxTypingCorrectionResults: rerank.DefaultMaxTypingCorrectionResults,
		},
		Dict: DictConfig{
			DataDir:        "data",
			MaxWords:       200000,
			ChunkSize:      20000,
			MatrixFile:     "matrix.def",
			PosFile:        "pos.toml",
			UserDictionary: "user_dictionary.yaml",
		},
	}
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	switch c.Server.Mode {
	case "desktop", "mixed":
	default:
		return fmt.Errorf("server.mode must be desktop or mixed, got %q", c.Server.Mode)
	}
	if c.Server.MaxLimit < 1 {
		return fmt.Errorf("server.max_limit must be positive")
	}
	if c.History.StoreCapacity < 1 {
		return fmt.Errorf("history.store_capacity must be positive")
	}
	if c.Dict.ChunkSize < 1 {
		return fmt.Errorf("dict.chunk_size must be positive")
	}
	return nil
}

// HistoryLimits converts the [history] section into running limits.
func (c *Config) HistoryLimits() history.Limits {
	h := c.History
	return history.Limits{
		CacheStoreSize:          h.CacheStoreSize,
		EntryLifetimeDays:       h.EntryLifetimeDays,
		MaxSuggestionTrial:      h.MaxSuggestionTrial,
		MaxPredictionCandidates: h.MaxPredictionCandidates,
		MaxZeroQueryCandidates:  h.MaxZeroQueryCandidates,
		MaxCharCoverage:         h.MaxCharCoverage,
		TypingCorrectionSize:    h.TypingCorrectionSize,
	}
}

// RerankSettings converts the [prediction] section into reranker settings.
func (c *Config) RerankSettings() rerank.Settings {
	p := c.Prediction
	return rerank.Settings{
		MaxCandidates:              p.MaxCandidates,
		MaxCharCoverage:            p.MaxCharCoverage,
		ConsistencyMaxCostDiff:     p.ConsistencyMaxCostDiff,
		SuffixTransitionThreshold:  p.SuffixTransitionThreshold,
		UserDictionaryDiscount:     p.UserDictionaryDiscount,
		MaxTypingCorrectionResults: p.MaxTypingCorrectionResults,
		UseTypingCorrection:        p.UseTypingCorrection,
	}
}

// InitConfig loads config from file or creates default if missing
func InitConfig(configPath string) (*Config, error) {
	configDir := filepath.Dir(configPath)
	if err := utils.EnsureDir(configDir); err != nil {
		log.Warnf("Failed to create config directory %s: %v. Using built-in defaults...", configDir, err)
		return DefaultConfig(), nil
	}
	if !utils.FileExists(configPath) {
		config := DefaultConfig()
		if err := SaveConfig(config, configPath); err != nil {
			log.Warnf("Failed to create default config file at %s: %v. Using built-in defaults...", configPath, err)
			return DefaultConfig(), nil
		}
		log.Debugf("Created default config file at: %s", configPath)
		return config, nil
	}
	return LoadConfig(configPath)
}

// LoadConfig loads from a TOML file. A file that does not decode is salvaged
// section by section; whatever cannot be read keeps its default.
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()
	unknown, err := utils.LoadTOMLFile(configPath, config)
	if err != nil {
		log.Warnf("TOML parsing error in %s: %v. Attempting partial recovery...", configPath, err)
		config = tryPartialParse(configPath)
	} else if len(unknown) > 0 {
		log.Warnf("Ignoring unknown config keys in %s: %v", configPath, unknown)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", configPath, err)
	}
	return config, nil
}

// tryPartialParse keeps every recognizable key of a broken file.
func tryPartialParse(configPath string) *Config {
	config := DefaultConfig()
	raw, err := utils.ParseTOMLWithRecovery(configPath)
	if err != nil {
		log.Warnf("Could not parse any valid configuration from %s: %v. Using all defaults.", configPath, err)
		return config
	}
	if section, ok := utils.ExtractSection(raw, "server"); ok {
		extractServerConfig(section, &config.Server)
	}
	if section, ok := utils.ExtractSection(raw, "history"); ok {
		extractHistoryConfig(section, &config.History)
	}
	if section, ok := utils.ExtractSection(raw, "prediction"); ok {
		extractPredictionConfig(section, &config.Prediction)
	}
	if section, ok := utils.ExtractSection(raw, "dict"); ok {
		extractDictConfig(section, &config.Dict)
	}
	return config
}

func setInt(data map[string]any, key string, dst *int) {
	if val, ok := utils.ExtractInt(data, key); ok {
		*dst = val
	}
}

func setString(data map[string]any, key string, dst *string) {
	if val, ok := utils.ExtractString(data, key); ok {
		*dst = val
	}
}

func setBool(data map[string]any, key string, dst *bool) {
	if val, ok := utils.ExtractBool(data, key); ok {
		*dst = val
	}
}

func extractServerConfig(data map[string]any, server *ServerConfig) {
	setString(data, "mode", &server.Mode)
	setInt(data, "max_limit", &server.MaxLimit)
	setInt(data, "max_key_len", &server.MaxKeyLen)
	setString(data, "metrics_addr", &server.MetricsAddr)
}

func extractHistoryConfig(data map[string]any, h *HistoryConfig) {
	setInt(data, "cache_store_size", &h.CacheStoreSize)
	setInt(data, "store_capacity", &h.StoreCapacity)
	setInt(data, "entry_lifetime_days", &h.EntryLifetimeDays)
	setInt(data, "max_suggestion_trial", &h.MaxSuggestionTrial)
	setInt(data, "max_prediction_candidates", &h.MaxPredictionCandidates)
	setInt(data, "max_zero_query_candidates", &h.MaxZeroQueryCandidates)
	setInt(data, "max_char_coverage", &h.MaxCharCoverage)
	setInt(data, "typing_correction_size", &h.TypingCorrectionSize)
	setString(data, "storage_file", &h.StorageFile)
	setString(data, "passphrase_env", &h.PassphraseEnv)
}

func extractPredictionConfig(data map[string]any, p *PredictionConfig) {
	setInt(data, "suggestion_size", &p.SuggestionSize)
	setInt(data, "max_candidates", &p.MaxCandidates)
	setInt(data, "max_char_coverage", &p.MaxCharCoverage)
	setInt(data, "consistency_max_cost_diff", &p.ConsistencyMaxCostDiff)
	setInt(data, "suffix_transition_threshold", &p.SuffixTransitionThreshold)
	setInt(data, "user_dictionary_discount", &p.UserDictionaryDiscount)
	setInt(data, "max_typing_correction_results", &p.MaxTypingCorrectionResults)
	setBool(data, "use_typing_correction", &p.UseTypingCorrection)
	setBool(data, "auto_partial_suggestion", &p.AutoPartialSuggestion)
}

func extractDictConfig(data map[string]any, dict *DictConfig) {
	setString(data, "data_dir", &dict.DataDir)
	setInt(data, "max_words", &dict.MaxWords)
	setInt(data, "chunk_size", &dict.ChunkSize)
	setString(data, "matrix_file", &dict.MatrixFile)
	setString(data, "pos_file", &dict.PosFile)
	setString(data, "user_dictionary", &dict.UserDictionary)
}

// RebuildConfigFile force creates a new config.toml at default
func RebuildConfigFile() error {
	defaultPath, err := GetDefaultConfigPath()
	if err != nil {
		return err
	}
	if err := utils.EnsureDir(filepath.Dir(defaultPath)); err != nil {
		return err
	}
	return SaveConfig(DefaultConfig(), defaultPath)
}

// GetActiveConfigPath returns the absolute path of loaded config file
func GetActiveConfigPath(configPath string) string {
	if configPath == "" {
		if defaultPath, err := GetDefaultConfigPath(); err == nil {
			return defaultPath
		}
		return "unknown"
	}
	return utils.GetAbsolutePath(configPath)
}

// SaveConfig saves into a TOML file
func SaveConfig(config *Config, configPath string) error {
	return utils.SaveTOMLFile(config, configPath)
}

// Update changes the server limits and saves to file
func (c *Config) Update(configPath string, maxLimit, maxKeyLen *int) error {
	if maxLimit != nil {
		c.Server.MaxLimit = *maxLimit
	}
	if maxKeyLen != nil {
		c.Server.MaxKeyLen = *maxKeyLen
	}
	if err := c.Validate(); err != nil {
		return err
	}
	return SaveConfig(c, configPath)
}
