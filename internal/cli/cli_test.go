package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/imyousuf/ontograph/internal/config"
)

const testOBO = `format-version: 1.2
data-version: go/2024-01-01

[Term]
id: GO:0005575
name: cellular_component

[Term]
id: GO:0005623
name: cell
is_a: GO:0005575

[Term]
id: GO:0005737
name: cytoplasm
is_a: GO:0005575
relationship: part_of GO:0005623
`

// setupConfig writes an ontology source and a config pointing at it, and
// points the global viper at the config for the duration of the test.
func setupConfig(t *testing.T, backend string) string {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "go.obo")
	if err := os.WriteFile(src, []byte(testOBO), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	cfg.Ontologies = []config.OntologySource{{ID: "GO", Source: src}}
	cfg.Cache = config.CacheConfig{Backend: backend, Dir: filepath.Join(dir, "cache")}
	cfg.Logging.Level = "error"
	path := filepath.Join(dir, "ontograph.yaml")
	if err := config.WriteConfig(cfg, path); err != nil {
		t.Fatal(err)
	}
	viper.Set("config_file", path)
	t.Cleanup(func() { viper.Set("config_file", "") })
	return dir
}

func run(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestLoadCommand(t *testing.T) {
	for _, backend := range []string{config.CacheBackendFile, config.CacheBackendBadger, config.CacheBackendNone} {
		t.Run(backend, func(t *testing.T) {
			setupConfig(t, backend)

			out, err := run(t, newLoadCmd(), "--metrics")
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			for _, want := range []string{"GO", "source", "go/2024-01-01", "relations: is_a, part_of", "ontograph_loads_total"} {
				if !strings.Contains(out, want) {
					t.Errorf("load output missing %q:\n%s", want, out)
				}
			}

			out, err = run(t, newLoadCmd())
			if err != nil {
				t.Fatalf("second load: %v", err)
			}
			wantOrigin := "cache"
			if backend == config.CacheBackendNone {
				wantOrigin = "source"
			}
			if !strings.Contains(out, wantOrigin) {
				t.Errorf("second load origin is not %s:\n%s", wantOrigin, out)
			}
			if !strings.Contains(out, "relations: is_a, part_of") {
				t.Errorf("second load lost relation types:\n%s", out)
			}
		})
	}
}

func TestResolveCommand(t *testing.T) {
	setupConfig(t, config.CacheBackendNone)

	out, err := run(t, newResolveCmd(), "urn:miriam:obo.go:GO%3A0005737", "http://identifiers.org/GO:0005737")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if n := strings.Count(out, "GO:0005737\tcytoplasm"); n != 2 {
		t.Errorf("resolve output has %d matches, want 2:\n%s", n, out)
	}

	out, err = run(t, newResolveCmd(), "GO:0005737", "GO:9999999")
	if err == nil {
		t.Fatal("expected error for unresolved identifier")
	}
	if !strings.Contains(out, "GO:9999999\tnot found") {
		t.Errorf("missing not-found line:\n%s", out)
	}

	out, err = run(t, newResolveCmd(), "--json", "GO:0005737", "nope")
	if err != nil {
		t.Fatalf("resolve --json: %v", err)
	}
	var views []termView
	if err := json.Unmarshal([]byte(out), &views); err != nil {
		t.Fatalf("unmarshal: %v\n%s", err, out)
	}
	if len(views) != 2 || views[0].ID != "GO:0005737" || views[1].ID != "" || views[1].Query != "nope" {
		t.Errorf("views = %+v", views)
	}
}

func TestSearchAndCheckCommands(t *testing.T) {
	setupConfig(t, config.CacheBackendNone)

	out, err := run(t, newSearchCmd(), "Cytoplasm")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !strings.Contains(out, "GO:0005737") || !strings.Contains(out, "1 result(s)") {
		t.Errorf("search output:\n%s", out)
	}

	tests := []struct {
		args []string
		want string
	}{
		{[]string{"GO:0005737", "GO:0005575"}, "is under"},
		{[]string{"GO:0005737", "GO:0005623"}, "is not under"},
		{[]string{"--policy", "part_of", "GO:0005737", "GO:0005623"}, "is under"},
		{[]string{"--breadth", "none", "GO:0005737", "GO:0005575"}, "is not under"},
	}
	for _, tt := range tests {
		out, err := run(t, newCheckCmd(), tt.args...)
		if err != nil {
			t.Fatalf("check %v: %v", tt.args, err)
		}
		if !strings.HasPrefix(out, fmt.Sprintf("%s %s ", tt.args[len(tt.args)-2], tt.want)) {
			t.Errorf("check %v = %q, want %q", tt.args, out, tt.want)
		}
	}

	if _, err := run(t, newCheckCmd(), "--breadth", "wide", "GO:0005737", "GO:0005575"); err == nil {
		t.Error("expected error for bad breadth")
	}
}

func TestNavigationCommands(t *testing.T) {
	setupConfig(t, config.CacheBackendNone)

	out, err := run(t, newClosureCmd("ancestors"), "--policy", "part_of", "GO:0005737")
	if err != nil {
		t.Fatalf("ancestors: %v", err)
	}
	if !strings.Contains(out, "GO:0005623") || !strings.Contains(out, "GO:0005575") {
		t.Errorf("ancestors output:\n%s", out)
	}

	out, err = run(t, newNeighborsCmd("children"), "--relation", "is_a", "GO:0005575")
	if err != nil {
		t.Fatalf("children: %v", err)
	}
	if !strings.Contains(out, "2 result(s)") {
		t.Errorf("children output:\n%s", out)
	}

	out, err = run(t, newRootsCmd(), "GO")
	if err != nil {
		t.Fatalf("roots: %v", err)
	}
	if !strings.Contains(out, "Root policy: strict") || !strings.Contains(out, "cellular_component") {
		t.Errorf("roots output:\n%s", out)
	}

	if _, err := run(t, newClosureCmd("descendants"), "GO:9999999"); err == nil {
		t.Error("expected error for unknown term")
	}
	if _, err := run(t, newRootsCmd(), "CL"); err == nil {
		t.Error("expected error for unknown ontology")
	}
}

func TestCacheCommands(t *testing.T) {
	setupConfig(t, config.CacheBackendFile)

	if _, err := run(t, newLoadCmd()); err != nil {
		t.Fatalf("load: %v", err)
	}
	out, err := run(t, newCacheCmd(), "list")
	if err != nil {
		t.Fatalf("cache list: %v", err)
	}
	if !strings.Contains(out, "1 entr(ies)") {
		t.Errorf("cache list output:\n%s", out)
	}

	if _, err := run(t, newCacheCmd(), "clear"); err != nil {
		t.Fatalf("cache clear: %v", err)
	}
	out, err = run(t, newCacheCmd(), "list")
	if err != nil {
		t.Fatalf("cache list: %v", err)
	}
	if !strings.Contains(out, "No cached ontologies.") {
		t.Errorf("cache list after clear:\n%s", out)
	}
}

func TestInitCommand(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(wd) })

	for _, format := range []string{"yaml", "toml"} {
		if _, err := run(t, newInitCmd(), "--format", format); err != nil {
			t.Fatalf("init --format %s: %v", format, err)
		}
		path := filepath.Join(dir, config.DefaultConfigFile+"."+format)
		cfg, err := config.LoadFile(path)
		if err != nil {
			t.Fatalf("LoadFile(%s): %v", path, err)
		}
		if len(cfg.Ontologies) != len(starterOntologies) || cfg.Ontologies[0].ID != "GO" {
			t.Errorf("%s ontologies = %+v", format, cfg.Ontologies)
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("%s: Validate: %v", format, err)
		}
	}

	if _, err := run(t, newInitCmd()); err == nil {
		t.Error("expected error when config exists")
	}
	if _, err := run(t, newInitCmd(), "--force"); err != nil {
		t.Errorf("init --force: %v", err)
	}
	if _, err := run(t, newInitCmd(), "--format", "ini"); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestInitTOMLIsDiscovered(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(wd) })

	if _, err := run(t, newInitCmd(), "--format", "toml"); err != nil {
		t.Fatalf("init --format toml: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load after init --format toml: %v", err)
	}
	if len(cfg.Ontologies) != len(starterOntologies) || cfg.Ontologies[1].IDPrefix != "CL" {
		t.Errorf("ontologies = %+v", cfg.Ontologies)
	}
}

func TestParseOntologyLines(t *testing.T) {
	got, err := parseOntologyLines("# comment\nGO http://example.org/go.obo\n\n  CL ./cl.obo  \n")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "GO" || got[1].Source != "./cl.obo" {
		t.Errorf("parseOntologyLines = %+v", got)
	}
	for _, bad := range []string{"", "# only comments\n", "GO"} {
		if _, err := parseOntologyLines(bad); err == nil {
			t.Errorf("parseOntologyLines(%q): expected error", bad)
		}
	}
	if lines, err := parseOntologyLines(starterOntologyLines()); err != nil || len(lines) != len(starterOntologies) {
		t.Errorf("starter lines do not round-trip: %v %v", lines, err)
	}
}

func TestConfigCommand(t *testing.T) {
	setupConfig(t, config.CacheBackendBadger)

	out, err := run(t, newConfigCmd())
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	for _, want := range []string{"Ontologies", "GO", "badger", "roots=strict", "Concurrency"} {
		if !strings.Contains(out, want) {
			t.Errorf("config output missing %q:\n%s", want, out)
		}
	}
}
