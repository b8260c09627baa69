package parser

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"
	"github.com/threefoldtech/shipgate/internal/config"
)

const (
	ymlExt  = ".yml"
	yamlExt = ".yaml"
	jsonExt = ".json"
)

var (
	// values that end up in a remote shell command line
	shellSafe   = regexp.MustCompile(`^[a-zA-Z0-9_./~@:+-]+$`)
	serviceName = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)
	projectKey  = regexp.MustCompile(`^[a-zA-Z0-9_.:-]+$`)

	validate = validator.New()
)

// Format returns the configuration format of a path from its extension
func Format(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case jsonExt:
		return jsonExt, nil
	case yamlExt, ymlExt:
		return yamlExt, nil
	default:
		return "", fmt.Errorf("unsupported configuration file format '%s', should be [yaml, yml, json]", path)
	}
}

// ValidateConfig checks the configuration and reports every problem found
func ValidateConfig(conf config.Config) error {
	var result *multierror.Error

	if err := validate.Struct(conf); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok {
			for _, fieldErr := range fieldErrs {
				result = multierror.Append(result, fmt.Errorf("invalid '%s': failed on '%s' rule", fieldErr.Namespace(), fieldErr.Tag()))
			}
		} else {
			result = multierror.Append(result, err)
		}
	}

	if !projectKey.MatchString(conf.Project.Key) {
		result = multierror.Append(result, fmt.Errorf("project key '%s' is invalid, should be alphanumeric, '-', '_', '.' or ':'", conf.Project.Key))
	}

	if !serviceName.MatchString(conf.Deploy.Service) {
		result = multierror.Append(result, fmt.Errorf("compose service '%s' is invalid", conf.Deploy.Service))
	}

	for name, value := range map[string]string{
		"deploy directory": conf.Deploy.Directory,
		"deploy branch":    conf.Deploy.Branch,
		"deploy user":      conf.Deploy.User,
	} {
		if err := validateShellSafe(name, value); err != nil {
			result = multierror.Append(result, err)
		}
	}

	if !conf.Deploy.InsecureIgnoreHostKey && conf.Deploy.KnownHosts != "" && !filepath.IsAbs(conf.Deploy.KnownHosts) {
		result = multierror.Append(result, fmt.Errorf("known hosts path '%s' should be absolute", conf.Deploy.KnownHosts))
	}

	if conf.Gate.Mode == config.GateModeScanner && !conf.Scanner.WaitGate {
		result = multierror.Append(result, fmt.Errorf("gate mode '%s' needs scanner.wait_gate enabled", config.GateModeScanner))
	}

	return result.ErrorOrNil()
}

func validateShellSafe(name, value string) error {
	if value == "" {
		return nil
	}
	if !shellSafe.MatchString(value) {
		return fmt.Errorf("%s '%s' contains characters that are not allowed in a remote command", name, value)
	}
	return nil
}
