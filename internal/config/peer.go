package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"

	"github.com/dkeye/meshcall/internal/domain"
)

// PeerConfig configures the meshpeer command line participant.
type PeerConfig struct {
	ServerURL       string        `mapstructure:"server_url"`
	Codec           string        `mapstructure:"codec"`
	Fingerprint     string        `mapstructure:"fingerprint"`
	FingerprintFile string        `mapstructure:"fingerprint_file"`
	STUNServers     []string      `mapstructure:"stun_servers"`
	GracePeriod     time.Duration `mapstructure:"grace_period"`
	Name            string        `mapstructure:"name"`
	LogLevel        string        `mapstructure:"log_level"`
}

// NewPeerViper returns a viper instance with peer defaults and MESHPEER_*
// environment overrides. Command flags are bound onto it by the caller, giving
// flag > env > file > default precedence.
func NewPeerViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("MESHPEER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("server_url", "ws://localhost:8080/api/ws/signal")
	v.SetDefault("codec", "json")
	v.SetDefault("fingerprint", "")
	v.SetDefault("fingerprint_file", "~/.meshcall_fingerprint")
	v.SetDefault("stun_servers", []string{
		"stun:stun.l.google.com:19302",
		"stun:stun1.l.google.com:19302",
	})
	v.SetDefault("grace_period", "5s")
	v.SetDefault("name", "")
	v.SetDefault("log_level", "info")
	return v
}

// LoadPeer reads file (if not empty) into v and decodes the result.
func LoadPeer(v *viper.Viper, file string) (*PeerConfig, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read peer config %s: %w", file, err)
		}
	}
	var cfg PeerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse peer config: %w", err)
	}
	if cfg.ServerURL == "" {
		return nil, errors.New("server_url is required")
	}
	if cfg.GracePeriod <= 0 {
		return nil, fmt.Errorf("grace_period must be positive, got %s", cfg.GracePeriod)
	}
	return &cfg, nil
}

// ResolveFingerprint returns the configured fingerprint, or the one persisted
// in FingerprintFile, creating and storing a new "fp_<uuid>" when neither exists.
func (c *PeerConfig) ResolveFingerprint() (domain.Fingerprint, error) {
	if c.Fingerprint != "" {
		return domain.Fingerprint(c.Fingerprint), nil
	}
	if c.FingerprintFile == "" {
		return domain.Fingerprint("fp_" + uuid.NewString()), nil
	}
	path, err := expandHome(c.FingerprintFile)
	if err != nil {
		return "", err
	}

	if data, err := os.ReadFile(path); err == nil {
		if fp := strings.TrimSpace(string(data)); fp != "" {
			return domain.Fingerprint(fp), nil
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("read fingerprint: %w", err)
	}

	fp := "fp_" + uuid.NewString()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("create fingerprint dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(fp+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("write fingerprint: %w", err)
	}
	return domain.Fingerprint(fp), nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
