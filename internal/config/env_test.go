package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExpandEnvVars(t *testing.T) {
	os.Setenv("TEST_VAR", "hello")
	defer os.Unsetenv("TEST_VAR")

	tests := []struct {
		input    string
		expected string
	}{
		{"${TEST_VAR}", "hello"},
		{"${TEST_VAR:default}", "hello"},
		{"${UNSET_VAR:fallback}", "fallback"},
		{"${UNSET_VAR}", ""},
		{"no vars here", "no vars here"},
		{"prefix-${TEST_VAR}-suffix", "prefix-hello-suffix"},
	}

	for _, tt := range tests {
		got := expandEnvVars(tt.input)
		if got != tt.expected {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestReadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# comment\n\nHYDRAMCP_LOG_LEVEL=debug\nHYDRAMCP_OPENAI_API_KEY=\"sk-test\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	vars, err := readEnvFile(path)
	if err != nil {
		t.Fatalf("readEnvFile failed: %v", err)
	}
	if vars["HYDRAMCP_LOG_LEVEL"] != "debug" {
		t.Errorf("expected debug, got %q", vars["HYDRAMCP_LOG_LEVEL"])
	}
	if vars["HYDRAMCP_OPENAI_API_KEY"] != "sk-test" {
		t.Errorf("expected sk-test, got %q", vars["HYDRAMCP_OPENAI_API_KEY"])
	}
}

func TestReadEnvFile_Missing(t *testing.T) {
	vars, err := readEnvFile("/nonexistent/path/.env")
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
	if len(vars) != 0 {
		t.Errorf("expected empty map, got %v", vars)
	}
}

func TestLoader_LoadMergesPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	os.WriteFile(path, []byte("HYDRAMCP_MAX_FAILURES=7\n"), 0o600)

	os.Setenv("HYDRAMCP_COOLDOWN_MS", "9999")
	defer os.Unsetenv("HYDRAMCP_COOLDOWN_MS")

	l := NewLoader(path, nil)
	if err := l.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	cfg := l.Config()
	if cfg.CircuitBreaker.MaxFailures != 7 {
		t.Errorf("expected MaxFailures 7 from env file, got %d", cfg.CircuitBreaker.MaxFailures)
	}
	if cfg.CircuitBreaker.CooldownMs != 9999 {
		t.Errorf("expected CooldownMs 9999 from process env, got %d", cfg.CircuitBreaker.CooldownMs)
	}
}
