package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/imyousuf/ontograph/internal/config"
)

// Style definitions for config view.
var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7571F9"})
	labelStyle = lipgloss.NewStyle().
			Faint(true).
			Width(18)
	valueStyle = lipgloss.NewStyle()
)

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		Long: `Show the configuration after defaults, the config file and ONTOGRAPH_*
environment overrides are applied.`,
		Args: cobra.NoArgs,
		RunE: runConfigView,
	}
}

func runConfigView(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out)
	fmt.Fprintln(out, headerStyle.Render("ontograph configuration"))
	fmt.Fprintln(out)

	printSection(out, "Ontologies")
	if len(cfg.Ontologies) == 0 {
		fmt.Fprintln(out, "    (none)")
	}
	for _, o := range cfg.Ontologies {
		line := fmt.Sprintf("%-8s %s", o.ID, o.Source)
		if o.IDPrefix != "" {
			line += "  prefix=" + o.IDPrefix
		}
		line += "  roots=" + string(cfg.PolicyFor(o))
		fmt.Fprintf(out, "    %s\n", line)
	}
	fmt.Fprintln(out)

	printSection(out, "Cache")
	printKV(out, "Backend", cfg.Cache.Backend)
	if cfg.Cache.Backend != config.CacheBackendNone {
		printKV(out, "Directory", cfg.ResolveCacheDir())
	}
	fmt.Fprintln(out)

	printSection(out, "Loader")
	printKV(out, "Concurrency", strconv.Itoa(cfg.Loader.Concurrency))
	printKV(out, "Fetch timeout", cfg.Loader.FetchTimeout)
	printKV(out, "Root policy", cfg.Loader.RootPolicy)
	printKV(out, "Max value length", strconv.Itoa(cfg.Loader.MaxValueLength))
	printKV(out, "Warm roots", boolYesNo(cfg.Loader.WarmRoots))
	fmt.Fprintln(out)

	printSection(out, "Logging")
	printKV(out, "Level", cfg.Logging.Level)
	printKV(out, "Format", cfg.Logging.Format)
	fmt.Fprintln(out)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(out, "  %s %v\n", headerStyle.Render("Invalid:"), err)
	}
	return nil
}

func printSection(out io.Writer, title string) {
	fmt.Fprintf(out, "  %s\n", headerStyle.Render(title))
}

func printKV(out io.Writer, label, value string) {
	fmt.Fprintf(out, "    %s%s\n", labelStyle.Render(label+":"), valueStyle.Render(value))
}

func boolYesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
