package cli

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/imyousuf/ontograph/internal/metrics"
)

func newLoadCmd() *cobra.Command {
	var showMetrics bool

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load every configured ontology and report",
		Long: `Fetch, parse and index every configured ontology, using the cache when
the source is unchanged, and print a summary per ontology. Any ontology that
cannot be loaded fails the command.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openRegistry(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-10s  %8s  %9s  %5s  %-6s  %10s  %s\n", "Ontology", "Terms", "Relations", "Roots", "Origin", "Duration", "Version")
			fmt.Fprintf(out, "%-10s  %8s  %9s  %5s  %-6s  %10s  %s\n", "----------", "--------", "---------", "-----", "------", "----------", "-------")
			for _, e := range s.registry.Ontologies() {
				st := e.Graph.Stats()
				fmt.Fprintf(out, "%-10s  %8d  %9d  %5d  %-6s  %10s  %s\n",
					e.ID, st.Terms, st.Relations, st.Roots, e.Origin,
					e.Duration.Round(time.Millisecond), e.Header.DataVersion)
				if rels := e.Graph.RelationTypes(); len(rels) > 0 {
					names := make([]string, len(rels))
					for i, r := range rels {
						names[i] = r.String()
					}
					fmt.Fprintf(out, "            relations: %s\n", strings.Join(names, ", "))
				}
				for _, kind := range slices.Sorted(maps.Keys(e.Stats.Warnings)) {
					fmt.Fprintf(out, "            warning %s: %d\n", kind, e.Stats.Warnings[kind])
				}
			}

			if showMetrics {
				fmt.Fprintln(out)
				if err := metrics.WriteText(out, s.gatherer); err != nil {
					return fmt.Errorf("write metrics: %w", err)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showMetrics, "metrics", false, "print Prometheus metrics after loading")

	return cmd
}
