package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "postforge.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func loadFrom(t *testing.T, content string) *Config {
	t.Helper()
	Reset()
	t.Cleanup(Reset)
	cfg, err := Load(writeConfigFile(t, content))
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}
	return cfg
}

func TestLoadDefaults(t *testing.T) {
	cfg := loadFrom(t, "")

	if cfg.AI.Relay.URL != "http://localhost:3001" {
		t.Errorf("relay url = %q", cfg.AI.Relay.URL)
	}
	if cfg.AI.Chat.Model != "gpt-oss-120b" {
		t.Errorf("chat model = %q", cfg.AI.Chat.Model)
	}
	if cfg.Generate.MaxAttempts != 3 || cfg.Generate.WaveConcurrency != 2 {
		t.Errorf("generate = %+v", cfg.Generate)
	}
	if cfg.Generate.Intro.MinWords != 40 || cfg.Generate.Intro.MaxWords != 140 {
		t.Errorf("intro band = %+v", cfg.Generate.Intro)
	}
	if cfg.Publish.Status != "draft" {
		t.Errorf("status = %q", cfg.Publish.Status)
	}
	if cfg.Products.MaxCount != 10 {
		t.Errorf("max count = %d", cfg.Products.MaxCount)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("log level = %q", cfg.Logging.Level)
	}
}

func TestLoadConfigFileOverrides(t *testing.T) {
	cfg := loadFrom(t, `
ai:
  relay:
    url: http://relay.internal:8080
    timeout: 60s
generate:
  wave_concurrency: 4
publish:
  site_url: https://blog.example.com
  username: editor
  app_password: secret
  status: publish
`)

	if cfg.AI.Relay.URL != "http://relay.internal:8080" {
		t.Errorf("relay url = %q", cfg.AI.Relay.URL)
	}
	if cfg.AI.Relay.TimeoutDuration() != 60*time.Second {
		t.Errorf("relay timeout = %v", cfg.AI.Relay.TimeoutDuration())
	}
	if cfg.Generate.WaveConcurrency != 4 {
		t.Errorf("wave concurrency = %d", cfg.Generate.WaveConcurrency)
	}
	if cfg.Publish.Status != "publish" {
		t.Errorf("status = %q", cfg.Publish.Status)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("RELAY_API_URL", "http://from-env:3001")
	t.Setenv("CEREBRAS_MODEL", "llama-3.3-70b")
	cfg := loadFrom(t, "")

	if cfg.AI.Relay.URL != "http://from-env:3001" {
		t.Errorf("relay url = %q", cfg.AI.Relay.URL)
	}
	if cfg.AI.Chat.Model != "llama-3.3-70b" {
		t.Errorf("chat model = %q", cfg.AI.Chat.Model)
	}
}

func TestEnvironmentFirstKeyWins(t *testing.T) {
	t.Setenv("CHAT_ZAI_API_URL", "http://primary-name:3001")
	t.Setenv("RELAY_API_URL", "http://secondary-name:3001")
	cfg := loadFrom(t, "")

	if cfg.AI.Relay.URL != "http://primary-name:3001" {
		t.Errorf("relay url = %q", cfg.AI.Relay.URL)
	}
}

func TestInvalidDurationRejected(t *testing.T) {
	Reset()
	t.Cleanup(Reset)
	_, err := Load(writeConfigFile(t, "ai:\n  relay:\n    timeout: not-a-duration\n"))
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "invalid duration") {
		t.Errorf("error = %v", err)
	}
}

func TestPartialWordPressConfigRejected(t *testing.T) {
	Reset()
	t.Cleanup(Reset)
	_, err := Load(writeConfigFile(t, "publish:\n  site_url: https://blog.example.com\n"))
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "publish.username") || !strings.Contains(err.Error(), "publish.app_password") {
		t.Errorf("error = %v", err)
	}
}

func TestDurationHelperFallbacks(t *testing.T) {
	var relay RelayConfig
	if relay.TimeoutDuration() != 120*time.Second {
		t.Errorf("relay timeout fallback = %v", relay.TimeoutDuration())
	}
	if relay.RetryWaitDuration() != 10*time.Second {
		t.Errorf("retry wait fallback = %v", relay.RetryWaitDuration())
	}
	var router RouterConfig
	if router.PacingDelayDuration() != 3*time.Second {
		t.Errorf("pacing fallback = %v", router.PacingDelayDuration())
	}
	var gen Generate
	if gen.CompletionDelayDuration() != time.Second {
		t.Errorf("completion delay fallback = %v", gen.CompletionDelayDuration())
	}

	relay.Timeout = "90s"
	if relay.TimeoutDuration() != 90*time.Second {
		t.Errorf("relay timeout = %v", relay.TimeoutDuration())
	}
}

func TestGetAfterLoad(t *testing.T) {
	cfg := loadFrom(t, "")
	if Get() != cfg {
		t.Error("Get should return the loaded config")
	}
}
