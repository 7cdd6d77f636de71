package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// ProviderType defines the supported provider implementations
type ProviderType string

const (
	ProviderTypeAnthropic    ProviderType = "anthropic"
	ProviderTypeOpenAI       ProviderType = "openai"
	ProviderTypeOpenAICompat ProviderType = "openai_compatible"
)

// builtInProviderTypes maps known provider names to their types
var builtInProviderTypes = map[string]ProviderType{
	"anthropic": ProviderTypeAnthropic,
	"openai":    ProviderTypeOpenAI,
}

// InferProviderType returns the provider type for a given provider name.
// Explicit type takes precedence, then built-in names, then defaults to
// openai_compatible (any custom provider name is assumed to speak the
// OpenAI-compatible chat-completions wire format).
func InferProviderType(name string, explicit ProviderType) ProviderType {
	if explicit != "" {
		return explicit
	}
	if t, ok := builtInProviderTypes[name]; ok {
		return t
	}
	return ProviderTypeOpenAICompat
}

// ProviderConfig is a unified configuration for any provider.
type ProviderConfig struct {
	// Type of provider - inferred from key name for built-ins, required for custom
	Type ProviderType `mapstructure:"type"`

	// Common fields
	APIKey      string   `mapstructure:"api_key"`
	Model       string   `mapstructure:"model"`
	Models      []string `mapstructure:"models"`      // Available models for autocomplete
	Credentials string   `mapstructure:"credentials"` // "api_key", "codex"

	// OpenAI-compatible specific
	BaseURL string `mapstructure:"base_url"` // Base URL - /chat/completions is appended
	URL     string `mapstructure:"url"`      // Full URL - used as-is without appending endpoint

	// Runtime fields (populated after credential resolution)
	ResolvedAPIKey string `mapstructure:"-"`
	ResolvedURL    string `mapstructure:"-"`
}

// Config is the resolved configuration object the tool-dispatch core
// receives. Loading mechanics (flag parsing, file merge, env resolution)
// are this package's concern; the core treats the result as opaque.
type Config struct {
	DefaultProvider string                    `mapstructure:"default_provider"`
	Providers       map[string]ProviderConfig `mapstructure:"providers"`
	DebugLogs       DebugLogsConfig           `mapstructure:"debug_logs"`
	Sessions        SessionsConfig            `mapstructure:"sessions"`
	Chat            ChatConfig                `mapstructure:"chat"`
	Tools           ToolsConfig               `mapstructure:"tools"`
	Sandbox         SandboxConfig             `mapstructure:"sandbox"`
	Approval        ApprovalConfig            `mapstructure:"approval"`
	MCP             MCPConfig                 `mapstructure:"mcp"`
}

// DebugLogsConfig configures debug logging of LLM requests and responses.
type DebugLogsConfig struct {
	Enabled bool   `mapstructure:"enabled"` // Enable debug logging
	Dir     string `mapstructure:"dir"`     // Override default directory
}

// SessionsConfig configures session/rollout storage.
type SessionsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`      // Master switch - set to false to disable all session storage
	MaxAgeDays int    `mapstructure:"max_age_days"` // Auto-delete sessions older than N days (0=never)
	MaxCount   int    `mapstructure:"max_count"`    // Keep at most N sessions, delete oldest (0=unlimited)
	Path       string `mapstructure:"path"`         // Optional SQLite DB path override (supports :memory:)
}

// ChatConfig configures the default agentic turn loop.
type ChatConfig struct {
	Provider     string `mapstructure:"provider"`     // Override default provider
	Model        string `mapstructure:"model"`        // Override default model
	Instructions string `mapstructure:"instructions"` // Custom system prompt
	MaxTurns     int    `mapstructure:"max_turns"`    // Max agentic turns (default 200)
}

// ToolsConfig configures the local tool registry.
type ToolsConfig struct {
	Enabled            []string `mapstructure:"enabled"`               // Enabled tool names
	ReadDirs           []string `mapstructure:"read_dirs"`             // Directories for read operations
	WriteDirs          []string `mapstructure:"write_dirs"`            // Directories for write operations
	MaxToolOutputChars int      `mapstructure:"max_tool_output_chars"` // Global max chars per tool output (default 20000)
}

// SandboxConfig configures the sandbox decision table's default tier and
// escalation behavior (spec.md §4.2).
type SandboxConfig struct {
	Policy          string `mapstructure:"policy"`           // "never", "on_request", "on_failure", "untrusted"
	PreferredTier   string `mapstructure:"preferred_tier"`   // default permission tier name
	ShellAllow      []string `mapstructure:"shell_allow"`    // Shell command patterns auto-approved without a tier check
	ShellAutoRunEnv string `mapstructure:"shell_auto_run_env"` // Env var required for auto-run
}

// ApprovalConfig configures the approval cache's session-scoping behavior.
type ApprovalConfig struct {
	Enabled bool `mapstructure:"enabled"` // Master switch; false means every mutating call is denied without prompting
}

// MCPConfig configures MCP server connections exposed as Mcp-kind tool handlers.
type MCPConfig struct {
	Servers map[string]MCPServerConfig `mapstructure:"servers"`
}

// MCPServerConfig configures a single MCP server process/endpoint.
type MCPServerConfig struct {
	Command string            `mapstructure:"command"`
	Args    []string          `mapstructure:"args"`
	URL     string            `mapstructure:"url"`
	Env     map[string]string `mapstructure:"env"`
}

func Load() (*Config, error) {
	configPath, err := GetConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config dir: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configPath)
	viper.AddConfigPath(".")

	viper.RegisterAlias("provider", "default_provider")

	for key, value := range GetDefaults() {
		viper.SetDefault(key, value)
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Providers == nil {
		cfg.Providers = make(map[string]ProviderConfig)
	}

	for name, providerCfg := range cfg.Providers {
		resolveProviderCredentials(name, &providerCfg)
		cfg.Providers[name] = providerCfg
	}

	return &cfg, nil
}

// GetBuiltInProviderNames returns a list of all built-in provider type names.
func GetBuiltInProviderNames() []string {
	names := make([]string, 0, len(builtInProviderTypes))
	for name := range builtInProviderTypes {
		names = append(names, name)
	}
	return names
}

// ApplyOverrides applies provider and model overrides to the config.
func (c *Config) ApplyOverrides(provider, model string) {
	if provider != "" {
		c.DefaultProvider = provider
	}
	if model != "" && c.DefaultProvider != "" {
		cfg, ok := c.Providers[c.DefaultProvider]
		if !ok {
			cfg = ProviderConfig{Model: model}
		} else {
			cfg.Model = model
		}
		c.Providers[c.DefaultProvider] = cfg
	}
}

// GetProviderConfig returns the config for the specified provider name.
func (c *Config) GetProviderConfig(name string) *ProviderConfig {
	if cfg, ok := c.Providers[name]; ok {
		return &cfg
	}
	return nil
}

// GetActiveProviderConfig returns the config for the default provider.
func (c *Config) GetActiveProviderConfig() *ProviderConfig {
	return c.GetProviderConfig(c.DefaultProvider)
}

// resolveProviderCredentials resolves credentials for a provider based on its type.
func resolveProviderCredentials(name string, cfg *ProviderConfig) {
	providerType := InferProviderType(name, cfg.Type)

	cfg.BaseURL = expandEnv(cfg.BaseURL)
	cfg.URL = expandEnv(cfg.URL)
	cfg.ResolvedURL = cfg.URL
	if cfg.ResolvedURL == "" {
		cfg.ResolvedURL = cfg.BaseURL
	}

	switch providerType {
	case ProviderTypeAnthropic:
		cfg.ResolvedAPIKey = expandEnv(cfg.APIKey)
		if cfg.ResolvedAPIKey == "" {
			cfg.ResolvedAPIKey = os.Getenv("ANTHROPIC_API_KEY")
		}

	case ProviderTypeOpenAI:
		cfg.ResolvedAPIKey = expandEnv(cfg.APIKey)
		if cfg.ResolvedAPIKey == "" {
			cfg.ResolvedAPIKey = os.Getenv("OPENAI_API_KEY")
		}

	case ProviderTypeOpenAICompat:
		cfg.ResolvedAPIKey = expandEnv(cfg.APIKey)
		if cfg.ResolvedAPIKey == "" {
			envName := strings.ToUpper(name) + "_API_KEY"
			cfg.ResolvedAPIKey = os.Getenv(envName)
		}
	}
}

// ResolveForInference is a no-op hook kept for call-site symmetry with the
// rest of the provider construction path; credential/URL resolution happens
// eagerly in resolveProviderCredentials since this module doesn't support
// deferred secret-manager lookups (config loading mechanics are out of
// scope per the dispatch core's contract).
func (cfg *ProviderConfig) ResolveForInference() error {
	return nil
}

// DescribeCredentialSource returns a human-readable description of which
// credential source will be used for the given provider, used by a
// "config show" style diagnostic command.
func DescribeCredentialSource(name string, cfg *ProviderConfig) (string, bool) {
	providerType := InferProviderType(name, cfg.Type)

	switch providerType {
	case ProviderTypeAnthropic:
		return describeEnvKeyCredential(cfg, "ANTHROPIC_API_KEY")
	case ProviderTypeOpenAI:
		return describeEnvKeyCredential(cfg, "OPENAI_API_KEY")
	case ProviderTypeOpenAICompat:
		envName := strings.ToUpper(name) + "_API_KEY"
		return describeEnvKeyCredential(cfg, envName)
	}

	return "unknown", false
}

// describeEnvKeyCredential checks config api_key then an environment variable.
func describeEnvKeyCredential(cfg *ProviderConfig, envName string) (string, bool) {
	apiKey := expandEnv(cfg.APIKey)
	if apiKey != "" {
		return "config api_key", true
	}
	if os.Getenv(envName) != "" {
		return envName + " env", true
	}
	return fmt.Sprintf("none (set %s or config api_key)", envName), false
}

// ParseProviderModel splits "provider:model" into separate parts.
// Returns (provider, model). Model will be empty if not specified.
// This is a simple version that doesn't validate against configured providers.
func ParseProviderModel(s string) (provider, model string) {
	parts := strings.SplitN(s, ":", 2)
	provider = strings.TrimSpace(parts[0])
	if len(parts) == 2 {
		model = strings.TrimSpace(parts[1])
	}
	return provider, model
}

// expandEnv expands ${VAR} or $VAR in a string
func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		varName := s[2 : len(s)-1]
		return os.Getenv(varName)
	}
	if strings.HasPrefix(s, "$") {
		return os.Getenv(s[1:])
	}
	return s
}

// GetConfigDir returns the XDG config directory for agentkernel.
// Uses $XDG_CONFIG_HOME if set, otherwise ~/.config
func GetConfigDir() (string, error) {
	if xdgHome := os.Getenv("XDG_CONFIG_HOME"); xdgHome != "" {
		return filepath.Join(xdgHome, "agentkernel"), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".config", "agentkernel"), nil
}

// GetConfigPath returns the path where the config file should be located
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.yaml"), nil
}

// GetDebugLogsDir returns the XDG data directory for agentkernel debug logs.
// Uses $XDG_DATA_HOME if set, otherwise ~/.local/share
func GetDebugLogsDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "agentkernel", "debug")
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "agentkernel-debug") // fallback
	}
	return filepath.Join(homeDir, ".local", "share", "agentkernel", "debug")
}

// KnownKeys contains all valid configuration key paths.
var KnownKeys = map[string]bool{
	"default_provider": true,
	"providers":        true,
	"debug_logs":       true,
	"sessions":         true,
	"chat":             true,
	"tools":            true,
	"sandbox":          true,
	"approval":         true,
	"mcp":              true,

	"debug_logs.enabled": true,
	"debug_logs.dir":     true,

	"sessions.enabled":      true,
	"sessions.max_age_days": true,
	"sessions.max_count":    true,
	"sessions.path":         true,

	"chat.provider":     true,
	"chat.model":        true,
	"chat.instructions": true,
	"chat.max_turns":    true,

	"tools.enabled":               true,
	"tools.read_dirs":             true,
	"tools.write_dirs":            true,
	"tools.max_tool_output_chars": true,

	"sandbox.policy":             true,
	"sandbox.preferred_tier":     true,
	"sandbox.shell_allow":        true,
	"sandbox.shell_auto_run_env": true,

	"approval.enabled": true,

	"mcp.servers": true,
}

// KnownProviderKeys contains valid keys for provider configurations
var KnownProviderKeys = map[string]bool{
	"type":        true,
	"api_key":     true,
	"model":       true,
	"models":      true,
	"credentials": true,
	"base_url":    true,
	"url":         true,
}

// GetDefaults returns a map of all default configuration values
func GetDefaults() map[string]any {
	return map[string]any{
		"default_provider":          "anthropic",
		"chat.max_turns":            200,
		"chat.instructions":         "You are a helpful assistant. Today's date is {{date}}.",
		"providers.anthropic.model": "claude-sonnet-4-6",
		"providers.openai.model":    "gpt-5.2",
		"tools.enabled":             []string{},
		"tools.read_dirs":           []string{},
		"tools.write_dirs":          []string{},
		"tools.max_tool_output_chars": 20000,
		"sessions.enabled":          true,
		"sessions.max_age_days":     0,
		"sessions.max_count":        0,
		"sessions.path":             "",
		"sandbox.policy":            "on_request",
		"sandbox.preferred_tier":    "workspace-write",
		"sandbox.shell_allow":       []string{},
		"sandbox.shell_auto_run_env": "AGENTKERNEL_ALLOW_AUTORUN",
		"approval.enabled":          true,
	}
}

// IsKnownKey checks if a key path is a known configuration key.
// For provider keys (providers.*), validates the sub-keys.
func IsKnownKey(keyPath string) bool {
	if KnownKeys[keyPath] {
		return true
	}

	if strings.HasPrefix(keyPath, "providers.") {
		parts := strings.SplitN(keyPath, ".", 3)
		if len(parts) == 2 {
			return true
		}
		if len(parts) == 3 {
			return KnownProviderKeys[parts[2]]
		}
	}

	return false
}

// Exists returns true if a config file exists
func Exists() bool {
	path, err := GetConfigPath()
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// NeedsSetup returns true if config file doesn't exist
func NeedsSetup() bool {
	return !Exists()
}

// Save writes the config to disk
func Save(cfg *Config) error {
	path, err := GetConfigPath()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var providers strings.Builder
	providers.WriteString("providers:\n")
	for name, p := range cfg.Providers {
		providers.WriteString(fmt.Sprintf("  %s:\n", name))
		if p.Type != "" {
			providers.WriteString(fmt.Sprintf("    type: %s\n", p.Type))
		}
		if p.Model != "" {
			providers.WriteString(fmt.Sprintf("    model: %s\n", p.Model))
		}
		if p.BaseURL != "" {
			providers.WriteString(fmt.Sprintf("    base_url: %s\n", p.BaseURL))
		}
	}

	content := fmt.Sprintf(`default_provider: %s

%s`, cfg.DefaultProvider, providers.String())

	return os.WriteFile(path, []byte(content), 0600)
}
