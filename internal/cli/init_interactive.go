package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/imyousuf/ontograph/internal/config"
)

// parseOntologyLines reads one "ID source" pair per line. Blank lines and
// lines starting with # are skipped.
func parseOntologyLines(text string) ([]config.OntologySource, error) {
	var out []config.OntologySource
	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("line %d: want \"ID source\", got %q", i+1, line)
		}
		out = append(out, config.OntologySource{ID: fields[0], Source: fields[1]})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("at least one ontology is required")
	}
	return out, nil
}

func starterOntologyLines() string {
	var b strings.Builder
	for _, o := range starterOntologies {
		fmt.Fprintf(&b, "%s %s\n", o.ID, o.Source)
	}
	return b.String()
}

// runInteractiveInit asks for the ontologies and cache settings, then
// returns the resulting configuration. A nil config means the user cancelled.
func runInteractiveInit(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()

	var (
		ontologyText = starterOntologyLines()
		backend      = cfg.Cache.Backend
		rootPolicy   = cfg.Loader.RootPolicy
		warmRoots    = true
		confirm      bool
	)

	backendOptions := []huh.Option[string]{
		huh.NewOption("Files in a directory", config.CacheBackendFile),
		huh.NewOption("Embedded Badger database", config.CacheBackendBadger),
		huh.NewOption("No cache", config.CacheBackendNone),
	}
	policyOptions := []huh.Option[string]{
		huh.NewOption("Strict (no parent of any kind)", "strict"),
		huh.NewOption("Greedy (skip obsolete and instance parents)", "greedy"),
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewText().
				Title("Ontologies").
				Description("One \"ID source\" per line; sources are paths or URLs").
				Value(&ontologyText).
				Lines(6).
				Validate(func(s string) error {
					_, err := parseOntologyLines(s)
					return err
				}),
		).Title("Sources"),

		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Cache backend").
				Options(backendOptions...).
				Value(&backend),
			huh.NewSelect[string]().
				Title("Root detection").
				Options(policyOptions...).
				Value(&rootPolicy),
			huh.NewConfirm().
				Title("Precompute subtree closures at load?").
				Description("Slower first load, faster first queries").
				Value(&warmRoots).
				Affirmative("Yes").
				Negative("No"),
		).Title("Loading"),

		huh.NewGroup(
			huh.NewConfirm().
				Title("Write configuration?").
				Value(&confirm).
				Affirmative("Write").
				Negative("Cancel"),
		).Title("Confirm"),
	).WithTheme(huh.ThemeCharm())

	if err := form.Run(); err != nil {
		if err == huh.ErrUserAborted {
			fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
			return nil, nil
		}
		return nil, fmt.Errorf("interactive init: %w", err)
	}
	if !confirm {
		fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
		return nil, nil
	}

	ontologies, err := parseOntologyLines(ontologyText)
	if err != nil {
		return nil, err
	}
	cfg.Ontologies = ontologies
	cfg.Cache.Backend = backend
	cfg.Loader.RootPolicy = rootPolicy
	cfg.Loader.WarmRoots = warmRoots
	return cfg, nil
}
