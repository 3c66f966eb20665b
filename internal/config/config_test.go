package config

import (
	"os"
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	s, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.ControlSurface.Host != "localhost" || s.ControlSurface.Port != 4455 {
		t.Fatalf("surface defaults = %+v", s.ControlSurface)
	}
	if s.Server.Addr != "127.0.0.1:7626" {
		t.Fatalf("server addr = %q", s.Server.Addr)
	}
}

func TestSaveThenLoadRoundtrip(t *testing.T) {
	ws := t.TempDir()
	in := &Settings{}
	in.ControlSurface.Host = "10.0.0.5"
	in.ControlSurface.Port = 4460
	in.ControlSurface.Password = "hunter2"
	in.Chat.Username = "stagebot"
	in.Chat.Channel = "#stage"
	in.Chat.Token = "oauth:abc"
	in.Server.Addr = "127.0.0.1:9000"
	in.Server.Secret = "s3cret"

	if err := Save(ws, in); err != nil {
		t.Fatalf("Save: %v", err)
	}

	out, err := Load(ws)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out.ControlSurface.Host != "10.0.0.5" || out.ControlSurface.Port != 4460 {
		t.Fatalf("surface = %+v", out.ControlSurface)
	}
	if out.ControlSurface.Password != "hunter2" {
		t.Fatalf("surface password = %q", out.ControlSurface.Password)
	}
	if out.Chat.Token != "oauth:abc" || out.Chat.Channel != "#stage" {
		t.Fatalf("chat = %+v", out.Chat)
	}
	if out.Server.Secret != "s3cret" {
		t.Fatalf("server secret = %q", out.Server.Secret)
	}
}

func TestSecretsNeverWrittenToPreferences(t *testing.T) {
	ws := t.TempDir()
	in := &Settings{}
	in.ControlSurface.Password = "hunter2"
	in.Chat.Token = "oauth:abc"
	in.Server.Addr = "127.0.0.1:9000"
	in.Server.Secret = "s3cret"

	if err := Save(ws, in); err != nil {
		t.Fatalf("Save: %v", err)
	}

	prefs, err := os.ReadFile(PrefsPath(ws))
	if err != nil {
		t.Fatalf("read preferences: %v", err)
	}
	for _, secret := range []string{"hunter2", "oauth:abc", "s3cret"} {
		if strings.Contains(string(prefs), secret) {
			t.Fatalf("preferences file leaks secret %q:\n%s", secret, prefs)
		}
	}

	env, err := os.ReadFile(EnvPath(ws))
	if err != nil {
		t.Fatalf("read env file: %v", err)
	}
	if !strings.Contains(string(env), "hunter2") {
		t.Fatalf("env file missing surface password:\n%s", env)
	}
	info, err := os.Stat(EnvPath(ws))
	if err != nil {
		t.Fatalf("stat env file: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("env file mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestEnvironmentOverridesPreferences(t *testing.T) {
	ws := t.TempDir()
	in := &Settings{}
	in.Chat.Channel = "#from-yaml"
	in.Server.Addr = "127.0.0.1:9000"
	if err := SavePreferences(ws, in); err != nil {
		t.Fatalf("SavePreferences: %v", err)
	}

	t.Setenv("STAGEHAND_CHAT_CHANNEL", "#from-env")
	t.Setenv("STAGEHAND_CONTROL_SURFACE_PASSWORD", "env-pass")

	s, err := Load(ws)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Chat.Channel != "#from-env" {
		t.Fatalf("chat channel = %q, want env override", s.Chat.Channel)
	}
	if s.ControlSurface.Password != "env-pass" {
		t.Fatalf("surface password = %q", s.ControlSurface.Password)
	}
}

func TestValidateRejectsBadPort(t *testing.T) {
	s := &Settings{}
	s.ControlSurface.Port = 70000
	s.Server.Addr = "127.0.0.1:9000"
	if err := s.Validate(); err == nil {
		t.Fatalf("port 70000 accepted")
	}
}
