package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "toolgate.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestVersion(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "toolgate dev") {
		t.Errorf("output = %q", out)
	}
}

func TestCalc(t *testing.T) {
	t.Parallel()

	tests := []struct {
		args []string
		want string
	}{
		{[]string{"calc", "(15 - 3) * 2"}, "24"},
		{[]string{"calc", "2", "**", "10"}, "1024"},
		{[]string{"calc", "max(3, 9, 4)"}, "9"},
	}
	for _, tt := range tests {
		out, err := execute(t, tt.args...)
		if err != nil {
			t.Fatalf("%v: %v", tt.args, err)
		}
		if strings.TrimSpace(out) != tt.want {
			t.Errorf("%v = %q, want %q", tt.args, strings.TrimSpace(out), tt.want)
		}
	}
}

func TestCalc_Errors(t *testing.T) {
	t.Parallel()

	if _, err := execute(t, "calc"); err == nil {
		t.Error("calc without an expression should fail")
	}
	if _, err := execute(t, "calc", "__import__('os')"); err == nil {
		t.Error("identifiers outside the allow-list should fail")
	}
}

func TestConfigCheck(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "version: \"1\"\nengine:\n  model: gemini-2.5-pro\n")
	out, err := execute(t, "config", "check", path)
	if err != nil {
		t.Fatalf("config check: %v", err)
	}
	for _, want := range []string{"Configuration OK", "gemini-2.5-pro", "firecrawl"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestConfigCheck_Invalid(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "version: \"1\"\nagent:\n  thread_id: \"\"\n")
	if _, err := execute(t, "config", "check", path); err == nil {
		t.Error("expected validation error")
	}
}

func TestConfigShow_RedactsSecrets(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "version: \"1\"\nadmin:\n  bind: 127.0.0.1:9464\n  auth:\n    bearer_token: super-secret-admin-token\n")
	out, err := execute(t, "config", "show", "--config", path)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(out, "super-secret-admin-token") {
		t.Errorf("secret leaked:\n%s", out)
	}
	if !strings.Contains(out, "***REDACTED***") {
		t.Errorf("expected redaction placeholder:\n%s", out)
	}
}

func TestAudit_NotConfigured(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "version: \"1\"\n")
	_, err := execute(t, "audit", "--config", path)
	if err == nil || !strings.Contains(err.Error(), "sqlite_path") {
		t.Errorf("err = %v, want a hint about audit.sqlite_path", err)
	}
}

func TestAudit_Empty(t *testing.T) {
	t.Parallel()

	db := filepath.Join(t.TempDir(), "audit.db")
	path := writeConfig(t, "version: \"1\"\naudit:\n  sqlite_path: "+db+"\n")
	out, err := execute(t, "audit", "--config", path, "--type", "approval")
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if !strings.Contains(out, "No audit events.") {
		t.Errorf("output = %q", out)
	}
}
