package app

import (
	"context"
	"errors"
	"testing"

	"github.com/flemzord/toolgate/internal/mcp"
	"github.com/flemzord/toolgate/internal/tool"
)

func TestCatalogue_LocalOnly(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig(t)
	cfg.ToolServers = nil

	cat, err := Catalogue(context.Background(), cfg, func(string) (string, bool) { return "", false })
	if err != nil {
		t.Fatalf("Catalogue: %v", err)
	}
	if len(cat) != 1 || cat[0].Name != "calculator" || cat[0].Source != tool.SourceLocal {
		t.Errorf("catalogue = %+v, want the calculator only", cat)
	}
}

func TestCatalogue_CalculatorDisabled(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig(t)
	cfg.ToolServers = nil
	cfg.Tools.Calculator.Enabled = false

	cat, err := Catalogue(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("Catalogue: %v", err)
	}
	if len(cat) != 0 {
		t.Errorf("catalogue = %+v, want empty", cat)
	}
}

func TestCatalogue_FailedServerDegrades(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig(t)
	cfg.ToolServers = []mcp.ServerConfig{{
		Name:      "broken",
		Transport: "stdio",
		Command:   "/nonexistent/toolgate-test-server",
	}}

	cat, err := Catalogue(context.Background(), cfg, func(string) (string, bool) { return "", false })
	if !errors.Is(err, tool.ErrDiscoveryFailure) {
		t.Fatalf("err = %v, want ErrDiscoveryFailure", err)
	}
	if len(cat) != 1 || cat[0].Name != "calculator" {
		t.Errorf("catalogue = %+v, want the calculator to survive", cat)
	}
}

func TestCatalogue_MissingServerCredential(t *testing.T) {
	t.Parallel()

	// The default firecrawl server needs FIRECRAWL_API_KEY; without it
	// only that server is skipped.
	cfg := defaultConfig(t)

	cat, err := Catalogue(context.Background(), cfg, func(string) (string, bool) { return "", false })
	if !errors.Is(err, tool.ErrDiscoveryFailure) {
		t.Fatalf("err = %v, want ErrDiscoveryFailure", err)
	}
	if len(cat) != 1 {
		t.Errorf("catalogue = %+v, want the calculator only", cat)
	}
}
