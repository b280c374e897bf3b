package main

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	SlackBotToken string `yaml:"slack_bot_token"`
	SlackAppToken string `yaml:"slack_app_token"`

	LLMProvider     string `yaml:"llm_provider"`
	LLMModel        string `yaml:"llm_model"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`

	TrackerBin            string            `yaml:"tracker_bin"`
	TrackerRepo           string            `yaml:"tracker_repo"`
	TrackerTimeoutSeconds int               `yaml:"tracker_timeout_seconds"`
	TrackerLogins         map[string]string `yaml:"tracker_logins"`

	TaskAPIURL   string `yaml:"task_api_url"`
	TaskAPIToken string `yaml:"task_api_token"`
	DocAuthToken string `yaml:"doc_auth_token"`

	DBPath           string `yaml:"db_path"`
	CommandAliasPath string `yaml:"command_alias_path"`

	DigestChannelID string `yaml:"digest_channel_id"`
	DigestSchedule  string `yaml:"digest_schedule"`

	TeamName string `yaml:"team_name"`
	Timezone string `yaml:"timezone"`

	Location *time.Location `yaml:"-"`
}

func LoadConfig() Config {
	var cfg Config

	// Load from config.yaml if it exists
	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatalf("Error parsing %s: %v", configPath, err)
		}
		log.Printf("Loaded config from %s", configPath)
	}

	// Env vars override YAML values
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.SlackAppToken, "SLACK_APP_TOKEN")
	envOverride(&cfg.LLMProvider, "LLM_PROVIDER")
	envOverride(&cfg.LLMModel, "LLM_MODEL")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	envOverride(&cfg.TrackerBin, "TRACKER_BIN")
	envOverride(&cfg.TrackerRepo, "TRACKER_REPO")
	envOverrideInt(&cfg.TrackerTimeoutSeconds, "TRACKER_TIMEOUT_SECONDS")
	envOverride(&cfg.TaskAPIURL, "TASK_API_URL")
	envOverride(&cfg.TaskAPIToken, "TASK_API_TOKEN")
	envOverride(&cfg.DocAuthToken, "DOC_AUTH_TOKEN")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.CommandAliasPath, "COMMAND_ALIAS_PATH")
	envOverride(&cfg.DigestChannelID, "DIGEST_CHANNEL_ID")
	envOverride(&cfg.DigestSchedule, "DIGEST_SCHEDULE")
	envOverride(&cfg.TeamName, "TEAM_NAME")
	envOverride(&cfg.Timezone, "TIMEZONE")

	// Defaults
	if cfg.LLMProvider == "" {
		cfg.LLMProvider = "anthropic"
	}
	if cfg.TrackerBin == "" {
		cfg.TrackerBin = "gh"
	}
	if cfg.TrackerTimeoutSeconds == 0 {
		cfg.TrackerTimeoutSeconds = 60
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./deskbot.db"
	}
	if cfg.TeamName == "" {
		cfg.TeamName = "My Team"
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Local"
	}

	// Validate required fields
	required := map[string]string{
		"slack_bot_token": cfg.SlackBotToken,
		"slack_app_token": cfg.SlackAppToken,
	}
	for name, val := range required {
		if val == "" {
			log.Fatalf("Required config '%s' is not set (via config.yaml or env var)", name)
		}
	}

	switch cfg.LLMProvider {
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			log.Fatalf("anthropic_api_key is required when llm_provider=anthropic")
		}
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			log.Fatalf("openai_api_key is required when llm_provider=openai")
		}
	default:
		log.Fatalf("llm_provider must be 'anthropic' or 'openai', got '%s'", cfg.LLMProvider)
	}

	if strings.EqualFold(cfg.Timezone, "Local") {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			log.Fatalf("invalid timezone '%s': %v", cfg.Timezone, err)
		}
		cfg.Location = loc
	}

	if cfg.TrackerTimeoutSeconds < 1 {
		log.Fatalf("invalid tracker_timeout_seconds '%d': must be >= 1", cfg.TrackerTimeoutSeconds)
	}
	if cfg.CommandAliasPath != "" {
		if _, err := LoadCommandAliases(cfg.CommandAliasPath); err != nil {
			log.Fatalf("invalid command_alias_path '%s': %v", cfg.CommandAliasPath, err)
		}
	}

	return cfg
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}
