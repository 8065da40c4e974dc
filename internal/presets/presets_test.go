package presets

import (
	"strings"
	"testing"

	"github.com/golovatskygroup/mcp-infer/internal/proxy"
	"github.com/golovatskygroup/mcp-infer/internal/registry"
)

func TestFactoriesRegister(t *testing.T) {
	reg, err := registry.New(nil, Factories()...)
	if err != nil {
		t.Fatalf("built-in factories must register: %v", err)
	}
	if reg.Len() != 4 {
		t.Fatalf("expected 4 factories, got %d", reg.Len())
	}
}

func TestGithubPreset(t *testing.T) {
	f := Factories()[0]
	if f.ID != GitHub {
		t.Fatalf("expected github first, got %s", f.ID)
	}

	if f.Validate(registry.Credentials{}) {
		t.Fatal("expected empty bag to be invalid")
	}
	if !f.Validate(registry.Credentials{"token": "ghp_x"}) {
		t.Fatal("expected token-only bag to be valid")
	}
	if f.Validate(registry.Credentials{"token": "ghp_x", "url": "not a url"}) {
		t.Fatal("expected bad url to be invalid")
	}

	cfg, err := f.Build(registry.Credentials{"token": "ghp_x"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if cfg.Transport != proxy.TransportHTTP {
		t.Errorf("expected http transport, got %s", cfg.Transport)
	}
	if cfg.URL != DefaultGitHubURL {
		t.Errorf("unexpected url %q", cfg.URL)
	}
	if cfg.Headers["Authorization"] != "Bearer ghp_x" {
		t.Errorf("unexpected authorization header %q", cfg.Headers["Authorization"])
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("built config invalid: %v", err)
	}
}

func TestBuildNamesMissingField(t *testing.T) {
	for _, f := range Factories() {
		_, err := f.Build(registry.Credentials{})
		if err == nil {
			t.Fatalf("%s: expected error for empty bag", f.ID)
		}
		if !strings.Contains(err.Error(), "token") && !strings.Contains(err.Error(), "url") {
			t.Errorf("%s: error should name the missing field: %v", f.ID, err)
		}
	}
}

func TestAtlassianPresets(t *testing.T) {
	bag := registry.Credentials{"url": "https://acme.atlassian.net", "username": "bot@acme.io", "token": "t"}

	for _, id := range []string{Jira, Confluence} {
		fs, err := Select([]string{id})
		if err != nil {
			t.Fatalf("Select(%s): %v", id, err)
		}
		f := fs[0]
		if !f.Validate(bag) {
			t.Fatalf("%s: expected bag to be valid", id)
		}
		if f.Validate(registry.Credentials{"url": "https://acme.atlassian.net", "token": "t"}) {
			t.Errorf("%s: username is required", id)
		}
		cfg, err := f.Build(bag)
		if err != nil {
			t.Fatalf("%s: Build: %v", id, err)
		}
		if cfg.Transport != proxy.TransportStdio || cfg.Command != "uvx" {
			t.Errorf("%s: unexpected transport %s %q", id, cfg.Transport, cfg.Command)
		}
		prefix := strings.ToUpper(id)
		if cfg.Env[prefix+"_URL"] != "https://acme.atlassian.net" {
			t.Errorf("%s: unexpected env %v", id, cfg.Env)
		}
		if cfg.Env["READ_ONLY_MODE"] != "true" {
			t.Errorf("%s: expected read-only mode", id)
		}
	}
}

func TestGrafanaPreset(t *testing.T) {
	fs, err := Select([]string{"GRAFANA"})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	cfg, err := fs[0].Build(registry.Credentials{"url": "https://grafana.acme.io", "token": "glsa_x"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if cfg.Env["GRAFANA_SERVICE_ACCOUNT_TOKEN"] != "glsa_x" {
		t.Errorf("unexpected env %v", cfg.Env)
	}
	if cfg.Priority != 4 {
		t.Errorf("expected priority 4, got %d", cfg.Priority)
	}
}

func TestAllowListsAreReadOnly(t *testing.T) {
	for _, f := range Factories() {
		if len(f.AllowedTools) == 0 {
			t.Errorf("%s: expected a non-empty allow-list", f.ID)
		}
		for _, name := range f.AllowedTools {
			if registry.IsMutatingName(name) {
				t.Errorf("%s: allow-list exposes mutating tool %s", f.ID, name)
			}
		}
	}
}

func TestSelect(t *testing.T) {
	all, err := Select(nil)
	if err != nil || len(all) != 4 {
		t.Fatalf("expected all presets, got %d (%v)", len(all), err)
	}

	fs, err := Select([]string{"grafana", "github"})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(fs) != 2 || fs[0].ID != GitHub || fs[1].ID != Grafana {
		t.Fatalf("unexpected selection order: %v", fs)
	}

	if _, err := Select([]string{"nonexistent"}); err == nil {
		t.Fatal("expected unknown preset error")
	}
}
