package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// InitConfig creates a sample configuration file at the default location
// ($XDG_CONFIG_HOME/dittofs/config.yaml or ~/.config/dittofs/config.yaml).
// Returns the path the file was written to.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath creates a sample configuration file at the given path.
// Fails if a file already exists there unless force is set.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	cfg := GetDefaultConfig()

	secret, err := generateJWTSecret()
	if err != nil {
		return fmt.Errorf("failed to generate JWT secret: %w", err)
	}
	cfg.ControlPlane.JWT.Secret = secret

	body, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	contents := configFileHeader + string(body)

	if err := os.WriteFile(path, []byte(contents), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// configFileHeader is prepended to every generated config file.
const configFileHeader = `# DittoFS Configuration File
# Generated by 'dittofs init'. Edit freely, then start the server with:
#   dittofs start --config <this file>
#
# A random JWT secret has been generated below for development use. For
# production, set the secret via the ` + EnvControlPlaneSecretPlaceholder + `
# environment variable instead of checking a secret into this file.

`

// EnvControlPlaneSecretPlaceholder names the environment variable in the
// generated file's header without importing pkg/controlplane/api, which
// would create an import cycle (api imports nothing from config, but the
// init command already imports both directly for this message).
const EnvControlPlaneSecretPlaceholder = "DITTOFS_CONTROLPLANE_SECRET"

// generateJWTSecret returns a 64-character hex string (32 bytes of entropy),
// matching the guidance 'dittofs init' prints for production deployments.
func generateJWTSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
