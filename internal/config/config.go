package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	dirName   = ".stagehand"
	prefsFile = "stagehand.yml"
	envFile   = ".env"
	envPrefix = "STAGEHAND"
)

// Settings is the full runtime configuration. Secrets (surface password,
// chat token, API secret) never touch the YAML preferences file; they live in
// the env file and the process environment.
type Settings struct {
	ControlSurface ControlSurface `yaml:"control_surface" mapstructure:"control_surface"`
	Chat           Chat           `yaml:"chat" mapstructure:"chat"`
	EventSub       EventSub       `yaml:"eventsub" mapstructure:"eventsub"`
	MIDI           MIDI           `yaml:"midi" mapstructure:"midi"`
	Server         Server         `yaml:"server" mapstructure:"server"`
}

// ControlSurface is the scene-switcher endpoint.
type ControlSurface struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	Password string `yaml:"-" mapstructure:"password"`
}

// Chat is the chat identity.
type Chat struct {
	Username string `yaml:"username" mapstructure:"username"`
	Channel  string `yaml:"channel" mapstructure:"channel"`
	Token    string `yaml:"-" mapstructure:"token"`
}

// EventSub is the push-subscription endpoint setup.
type EventSub struct {
	URL           string   `yaml:"url" mapstructure:"url"`
	APIURL        string   `yaml:"api_url" mapstructure:"api_url"`
	ClientID      string   `yaml:"client_id" mapstructure:"client_id"`
	BroadcasterID string   `yaml:"broadcaster_id" mapstructure:"broadcaster_id"`
	EventTypes    []string `yaml:"event_types,omitempty" mapstructure:"event_types"`
}

// MIDI names the controller to open at startup. Empty disables MIDI.
type MIDI struct {
	Device string `yaml:"device" mapstructure:"device"`
}

// Server is the local API endpoint.
type Server struct {
	Addr   string `yaml:"addr" mapstructure:"addr"`
	Secret string `yaml:"-" mapstructure:"secret"`
}

// Dir returns the settings directory under a workspace.
func Dir(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, dirName)
}

// PrefsPath returns the YAML preferences file path.
func PrefsPath(workspace string) string {
	return filepath.Join(Dir(workspace), prefsFile)
}

// EnvPath returns the secret env file path.
func EnvPath(workspace string) string {
	return filepath.Join(Dir(workspace), envFile)
}

// Load merges, lowest precedence first: built-in defaults, the YAML
// preferences file, the env file, and the process environment
// (STAGEHAND_SECTION_KEY).
func Load(workspace string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(PrefsPath(workspace))
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read preferences: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}

	// The env file sits below the process environment: it only fills secrets
	// nothing above it has set. Missing file means a fresh workspace.
	if fileVals, err := godotenv.Read(EnvPath(workspace)); err == nil {
		fill := func(dst *string, key string) {
			if *dst == "" {
				*dst = fileVals[key]
			}
		}
		fill(&s.ControlSurface.Password, envPrefix+"_CONTROL_SURFACE_PASSWORD")
		fill(&s.Chat.Token, envPrefix+"_CHAT_TOKEN")
		fill(&s.Server.Secret, envPrefix+"_SERVER_SECRET")
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// setDefaults registers every key so env-only values survive Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("control_surface.host", "localhost")
	v.SetDefault("control_surface.port", 4455)
	v.SetDefault("control_surface.password", "")
	v.SetDefault("chat.username", "")
	v.SetDefault("chat.channel", "")
	v.SetDefault("chat.token", "")
	v.SetDefault("eventsub.url", "wss://eventsub.wss.twitch.tv/ws")
	v.SetDefault("eventsub.api_url", "https://api.twitch.tv/helix")
	v.SetDefault("eventsub.client_id", "")
	v.SetDefault("eventsub.broadcaster_id", "")
	v.SetDefault("eventsub.event_types", []string{})
	v.SetDefault("midi.device", "")
	v.SetDefault("server.addr", "127.0.0.1:7626")
	v.SetDefault("server.secret", "")
}

// Validate checks the fields a partially configured workspace can still get
// wrong. Empty identities are allowed; the transports simply stay offline.
func (s *Settings) Validate() error {
	if s.ControlSurface.Port < 0 || s.ControlSurface.Port > 65535 {
		return fmt.Errorf("control_surface.port %d out of range", s.ControlSurface.Port)
	}
	if s.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	return nil
}

// SavePreferences writes the non-sensitive settings to the YAML file.
func SavePreferences(workspace string, s *Settings) error {
	if err := os.MkdirAll(Dir(workspace), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(PrefsPath(workspace), data, 0o644)
}

// SaveSecrets writes the sensitive fields to the env file, permissions 0600.
func SaveSecrets(workspace string, s *Settings) error {
	if err := os.MkdirAll(Dir(workspace), 0o755); err != nil {
		return err
	}
	vals := map[string]string{
		envPrefix + "_CONTROL_SURFACE_PASSWORD": s.ControlSurface.Password,
		envPrefix + "_CHAT_TOKEN":               s.Chat.Token,
		envPrefix + "_SERVER_SECRET":            s.Server.Secret,
	}
	if err := godotenv.Write(vals, EnvPath(workspace)); err != nil {
		return err
	}
	return os.Chmod(EnvPath(workspace), 0o600)
}

// Save writes both files.
func Save(workspace string, s *Settings) error {
	if err := SavePreferences(workspace, s); err != nil {
		return err
	}
	return SaveSecrets(workspace, s)
}
