// Package config for the pipeline configuration
package config

import "time"

// Gate modes
const (
	GateModePoll    = "poll"
	GateModeWebhook = "webhook"
	GateModeScanner = "scanner"
)

// Config of a pipeline run, every value is constant for the duration of a run
type Config struct {
	Project    Project    `yaml:"project"`
	Repository Repository `yaml:"repository"`
	Scanner    Scanner    `yaml:"scanner"`
	Gate       Gate       `yaml:"gate"`
	Deploy     Deploy     `yaml:"deploy"`
	Image      Image      `yaml:"image"`
	Notify     Notify     `yaml:"notify"`
	History    History    `yaml:"history"`
}

// Project identifies the analysed project on the sonar server
type Project struct {
	Key  string `yaml:"key" validate:"required"`
	Name string `yaml:"name"`
}

// Repository to check out before scanning
type Repository struct {
	URL       string `yaml:"url" validate:"required_unless=Skip true"`
	Branch    string `yaml:"branch"`
	Workspace string `yaml:"workspace" validate:"required"`
	Skip      bool   `yaml:"skip"`
}

// Scanner is the static analysis command line
type Scanner struct {
	Binary         string   `yaml:"binary" validate:"required"`
	Sources        string   `yaml:"sources" validate:"required"`
	HostURL        string   `yaml:"host_url" validate:"required,url"`
	Token          string   `yaml:"token" validate:"required"`
	WaitGate       bool     `yaml:"wait_gate"`
	ExtraArgs      []string `yaml:"extra_args"`
	ReportTaskPath string   `yaml:"report_task_path"`
}

// Gate configures how the quality gate verdict is awaited
type Gate struct {
	Mode          string        `yaml:"mode" validate:"oneof=poll webhook scanner"`
	Timeout       time.Duration `yaml:"timeout" validate:"gt=0"`
	PollInterval  time.Duration `yaml:"poll_interval" validate:"gt=0"`
	WebhookListen string        `yaml:"webhook_listen" validate:"required_if=Mode webhook"`
	WebhookSecret string        `yaml:"webhook_secret"`
}

// Deploy is the remote host and the compose service to rebuild
type Deploy struct {
	Host                  string        `yaml:"host" validate:"required,hostname|ip"`
	Port                  uint          `yaml:"port" validate:"gt=0,lte=65535"`
	User                  string        `yaml:"user" validate:"required"`
	Directory             string        `yaml:"directory" validate:"required"`
	Branch                string        `yaml:"branch" validate:"required"`
	Service               string        `yaml:"service" validate:"required"`
	ComposeBinary         string        `yaml:"compose_binary" validate:"required"`
	IdentityFile          string        `yaml:"identity_file"`
	KnownHosts            string        `yaml:"known_hosts"`
	InsecureIgnoreHostKey bool          `yaml:"insecure_ignore_host_key"`
	ConnectRetries        uint64        `yaml:"connect_retries"`
	CommandTimeout        time.Duration `yaml:"command_timeout" validate:"gt=0"`
}

// Image describes the container build file of the deployed service
type Image struct {
	Base         string `yaml:"base" validate:"required"`
	Requirements string `yaml:"requirements" validate:"required"`
	Port         uint   `yaml:"port" validate:"gt=0,lte=65535"`
	App          string `yaml:"app" validate:"required"`
	Server       string `yaml:"server" validate:"required"`
}

// Notify destinations of the run outcome
type Notify struct {
	Telegram Telegram `yaml:"telegram"`
}

// Telegram bot credentials, notification is disabled when the token is empty
type Telegram struct {
	Token  string `yaml:"token"`
	ChatID int64  `yaml:"chat_id" validate:"required_with=Token"`
}

// History store location
type History struct {
	Path     string `yaml:"path"`
	Disabled bool   `yaml:"disabled"`
}

// Default returns a configuration with every optional value set
func Default() Config {
	return Config{
		Repository: Repository{
			Branch:    "main",
			Workspace: ".",
		},
		Scanner: Scanner{
			Binary:  "sonar-scanner",
			Sources: ".",
		},
		Gate: Gate{
			Mode:          GateModePoll,
			Timeout:       5 * time.Minute,
			PollInterval:  5 * time.Second,
			WebhookListen: ":8090",
		},
		Deploy: Deploy{
			Port:           22,
			Branch:         "main",
			ComposeBinary:  "docker compose",
			ConnectRetries: 3,
			CommandTimeout: 10 * time.Minute,
		},
		Image: Image{
			Base:         "python:3.11-slim",
			Requirements: "requirements.txt",
			Port:         5300,
			App:          "main:app",
			Server:       "uvicorn",
		},
		History: History{
			Path: "shipgate.db",
		},
	}
}
