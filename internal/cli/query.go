package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/imyousuf/ontograph/internal/closure"
	"github.com/imyousuf/ontograph/internal/graph"
	"github.com/imyousuf/ontograph/internal/registry"
)

// termView is the JSON shape of a term in command output.
type termView struct {
	Ontology string   `json:"ontology"`
	ID       string   `json:"id"`
	Name     string   `json:"name,omitempty"`
	Obsolete bool     `json:"obsolete,omitempty"`
	Synonyms []string `json:"synonyms,omitempty"`
	Query    string   `json:"query,omitempty"`
}

func viewOf(ref registry.Ref) termView {
	v := termView{Ontology: ref.Ontology, ID: ref.Term.ID, Name: ref.Term.Name, Obsolete: ref.Term.Obsolete}
	for _, s := range ref.Term.Synonyms {
		v.Synonyms = append(v.Synonyms, s.Text)
	}
	return v
}

// printRefs writes refs as a table, or as a JSON array when jsonOut is set.
func printRefs(out io.Writer, refs []registry.Ref, jsonOut bool) error {
	if jsonOut {
		views := make([]termView, 0, len(refs))
		for _, r := range refs {
			views = append(views, viewOf(r))
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	}
	if len(refs) == 0 {
		fmt.Fprintln(out, "No results found.")
		return nil
	}
	fmt.Fprintf(out, "%-8s  %-16s  %s\n", "Ontology", "ID", "Name")
	fmt.Fprintf(out, "%-8s  %-16s  %s\n", "--------", "----------------", "----")
	for _, r := range refs {
		name := r.Term.Name
		if r.Term.Obsolete {
			name += " (obsolete)"
		}
		fmt.Fprintf(out, "%-8s  %-16s  %s\n", r.Ontology, r.Term.ID, name)
	}
	fmt.Fprintf(out, "\n%d result(s)\n", len(refs))
	return nil
}

func newResolveCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "resolve <identifier>...",
		Short: "Resolve identifiers to terms",
		Long: `Resolve each identifier to a term. Accepted shapes include MIRIAM URNs
(urn:miriam:obo.go:GO%3A0005737), resolver URLs
(http://identifiers.org/GO:0005737, http://purl.obolibrary.org/obo/GO_0005737),
CURIEs (GO:0005737) and bare accessions (0005737).`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openRegistry(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.Close()

			out := cmd.OutOrStdout()
			if jsonOut {
				views := make([]termView, 0, len(args))
				for _, uri := range args {
					ref, ok := s.registry.Resolve(uri)
					v := termView{Query: uri}
					if ok {
						v = viewOf(ref)
						v.Query = uri
					}
					views = append(views, v)
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(views)
			}

			missing := 0
			for _, uri := range args {
				ref, ok := s.registry.Resolve(uri)
				if !ok {
					missing++
					fmt.Fprintf(out, "%s\tnot found\n", uri)
					continue
				}
				fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", uri, ref.Ontology, ref.Term.ID, ref.Term.Name)
			}
			if missing > 0 {
				return fmt.Errorf("%d of %d identifier(s) not found", missing, len(args))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON")

	return cmd
}

func newSearchCmd() *cobra.Command {
	var (
		ontologies []string
		jsonOut    bool
	)

	cmd := &cobra.Command{
		Use:   "search <name>",
		Short: "Find terms by name or synonym (case-insensitive)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openRegistry(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.Close()

			return printRefs(cmd.OutOrStdout(), s.registry.SearchByName(args[0], ontologies...), jsonOut)
		},
	}

	cmd.Flags().StringSliceVar(&ontologies, "ontology", nil, "restrict to these ontology ids (repeatable)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON")

	return cmd
}

func newCheckCmd() *cobra.Command {
	var (
		breadth string
		policy  string
	)

	cmd := &cobra.Command{
		Use:   "check <term> <root>",
		Short: "Test whether a term lies under a root",
		Long: `Test whether <term> lies in the subtree of <root>.

--breadth none    only the root itself is accepted
--breadth direct  the root or one of its direct children
--breadth all     the root or any descendant (default)

--policy selects the relations followed: is_a (default), part_of
(part_of and is_a) or develops_from (develops_from and is_a).`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := closure.ParseBreadth(breadth)
			if err != nil {
				return err
			}
			p, err := closure.ParsePolicy(policy)
			if err != nil {
				return err
			}
			s, err := openRegistry(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.Close()

			verdict := "is not under"
			if s.registry.IsDescendantOfWith(p, args[0], args[1], b) {
				verdict = "is under"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s (%s, %s)\n", args[0], verdict, args[1], p, b)
			return nil
		},
	}

	cmd.Flags().StringVar(&breadth, "breadth", "all", "none, direct or all")
	cmd.Flags().StringVar(&policy, "policy", "is_a", "is_a, part_of or develops_from")

	return cmd
}

// newClosureCmd builds the ancestors and descendants commands.
func newClosureCmd(name string) *cobra.Command {
	var (
		policy  string
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   name + " <term>",
		Short: "List transitive " + name + " of a term",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := closure.ParsePolicy(policy)
			if err != nil {
				return err
			}
			s, err := openRegistry(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.Close()

			if _, ok := s.registry.Resolve(args[0]); !ok {
				return fmt.Errorf("term %s not found", args[0])
			}
			var refs []registry.Ref
			if name == "ancestors" {
				refs = s.registry.Ancestors(args[0], p)
			} else {
				refs = s.registry.Descendants(args[0], p)
			}
			return printRefs(cmd.OutOrStdout(), refs, jsonOut)
		},
	}

	cmd.Flags().StringVar(&policy, "policy", "is_a", "is_a, part_of or develops_from")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON")

	return cmd
}

// newNeighborsCmd builds the parents and children commands.
func newNeighborsCmd(name string) *cobra.Command {
	var (
		relations []string
		jsonOut   bool
	)

	cmd := &cobra.Command{
		Use:   name + " <term>",
		Short: "List direct " + name + " of a term",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rels := make([]graph.RelationType, 0, len(relations))
			for _, r := range relations {
				rels = append(rels, graph.ParseRelationType(r))
			}
			s, err := openRegistry(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.Close()

			if _, ok := s.registry.Resolve(args[0]); !ok {
				return fmt.Errorf("term %s not found", args[0])
			}
			var refs []registry.Ref
			if name == "parents" {
				refs = s.registry.DirectParents(args[0], rels...)
			} else {
				refs = s.registry.DirectChildren(args[0], rels...)
			}
			return printRefs(cmd.OutOrStdout(), refs, jsonOut)
		},
	}

	cmd.Flags().StringSliceVar(&relations, "relation", nil, "relation types to follow (default: all)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON")

	return cmd
}

func newRootsCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "roots <ontology>",
		Short: "List the root terms of an ontology",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openRegistry(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.Close()

			e, ok := s.registry.Entry(args[0])
			if !ok {
				return fmt.Errorf("ontology %s is not configured", args[0])
			}
			if !jsonOut {
				fmt.Fprintf(cmd.OutOrStdout(), "Root policy: %s\n\n", e.Graph.RootPolicy())
			}
			return printRefs(cmd.OutOrStdout(), s.registry.Roots(args[0]), jsonOut)
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON")

	return cmd
}
