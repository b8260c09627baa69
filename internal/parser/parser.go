// Package parser for parsing pipeline configuration files
package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	env "github.com/hashicorp/go-envparse"
	"github.com/rs/zerolog/log"
	"github.com/threefoldtech/shipgate/internal/config"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of process environment variables that override configuration secrets
const EnvPrefix = "SHIPGATE_"

const (
	sonarTokenKey         = "SONAR_TOKEN"
	sonarHostURLKey       = "SONAR_HOST_URL"
	webhookSecretKey      = "SONAR_WEBHOOK_SECRET"
	deployHostKey         = "DEPLOY_HOST"
	deployUserKey         = "DEPLOY_USER"
	deployIdentityFileKey = "DEPLOY_IDENTITY_FILE"
	telegramTokenKey      = "TELEGRAM_BOT_TOKEN"
	telegramChatIDKey     = "TELEGRAM_CHAT_ID"
)

var envKeys = map[string]bool{
	sonarTokenKey:         true,
	sonarHostURLKey:       true,
	webhookSecretKey:      true,
	deployHostKey:         true,
	deployUserKey:         true,
	deployIdentityFileKey: true,
	telegramTokenKey:      true,
	telegramChatIDKey:     true,
}

// ParseConfig reads a yaml or json configuration on top of the defaults.
// json is decoded with the yaml decoder so durations like "5m" work in both formats.
func ParseConfig(file io.Reader, jsonFmt bool) (config.Config, error) {
	conf := config.Default()

	content, err := io.ReadAll(file)
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to read the config file: %w", err)
	}

	if jsonFmt && !json.Valid(content) {
		return config.Config{}, fmt.Errorf("invalid json configuration")
	}

	decoder := yaml.NewDecoder(bytes.NewReader(content))
	decoder.KnownFields(true)
	if err := decoder.Decode(&conf); err != nil && err != io.EOF {
		return config.Config{}, err
	}

	return conf, nil
}

// ReadEnvFile parses a .env file of secrets
func ReadEnvFile(path string) (map[string]string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open env file: %w", err)
	}

	envMap, err := env.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	return envMap, nil
}

// ProcessEnv collects the known SHIPGATE_ prefixed variables of the process environment, without the prefix.
// Other variables sharing the prefix are ignored.
func ProcessEnv() map[string]string {
	envMap := map[string]string{}
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, EnvPrefix) {
			continue
		}

		name := strings.TrimPrefix(key, EnvPrefix)
		if !envKeys[strings.ToUpper(name)] {
			log.Debug().Str("key", key).Msg("ignoring unknown environment variable")
			continue
		}
		envMap[name] = value
	}
	return envMap
}

// ApplyEnv overrides configuration secrets with the given environment
func ApplyEnv(conf *config.Config, envMap map[string]string) error {
	for key, value := range envMap {
		value = strings.TrimSpace(value)

		switch strings.ToUpper(key) {
		case sonarTokenKey:
			conf.Scanner.Token = value
		case sonarHostURLKey:
			conf.Scanner.HostURL = value
		case webhookSecretKey:
			conf.Gate.WebhookSecret = value
		case deployHostKey:
			conf.Deploy.Host = value
		case deployUserKey:
			conf.Deploy.User = value
		case deployIdentityFileKey:
			conf.Deploy.IdentityFile = value
		case telegramTokenKey:
			conf.Notify.Telegram.Token = value
		case telegramChatIDKey:
			chatID, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid %s '%s': %w", telegramChatIDKey, value, err)
			}
			conf.Notify.Telegram.ChatID = chatID
		default:
			return fmt.Errorf("key %v is invalid", key)
		}

		log.Debug().Str("key", key).Msg("configuration overridden from environment")
	}

	return nil
}

// Load parses, overrides and validates a configuration file in one go
func Load(path, envPath string) (config.Config, error) {
	format, err := Format(path)
	if err != nil {
		return config.Config{}, err
	}

	file, err := os.Open(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to open configuration file '%s' with error: %w", path, err)
	}
	defer file.Close()

	conf, err := ParseConfig(file, format == jsonExt)
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to parse configuration file '%s' with error: %w", path, err)
	}

	if envPath != "" {
		envMap, err := ReadEnvFile(envPath)
		if err != nil {
			return config.Config{}, err
		}

		if err := ApplyEnv(&conf, envMap); err != nil {
			return config.Config{}, fmt.Errorf("invalid env file '%s': %w", envPath, err)
		}
	}

	if err := ApplyEnv(&conf, ProcessEnv()); err != nil {
		return config.Config{}, fmt.Errorf("invalid %s environment: %w", EnvPrefix, err)
	}

	log.Debug().Msg("validating configuration file")
	if err := ValidateConfig(conf); err != nil {
		return config.Config{}, fmt.Errorf("failed to validate configuration file '%s' with error: %w", path, err)
	}

	return conf, nil
}
