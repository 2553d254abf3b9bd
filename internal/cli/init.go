package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/imyousuf/ontograph/internal/config"
)

// starterOntologies seeds a new configuration.
var starterOntologies = []config.OntologySource{
	{ID: "GO", Source: "http://purl.obolibrary.org/obo/go/go-basic.obo"},
	{ID: "CL", Source: "http://purl.obolibrary.org/obo/cl/cl-basic.obo", IDPrefix: "CL"},
}

func newInitCmd() *cobra.Command {
	var (
		format      string
		force       bool
		interactive bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter configuration file",
		Long: `Write a starter ontograph configuration in the current directory.

The file lists the Gene Ontology and the Cell Ontology as examples, a file
cache under the system temp directory, and the default loader settings.
Use --format toml to write .ontograph.toml instead of .ontograph.yaml, and
--interactive to pick the ontologies and cache settings in a form.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var ext string
			switch format {
			case "yaml", "yml":
				ext = ".yaml"
			case "toml":
				ext = ".toml"
			default:
				return fmt.Errorf("unsupported format %q (use yaml or toml)", format)
			}
			path := config.DefaultConfigFile + ext
			if cfgFile != "" {
				path = cfgFile
			}

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("stat %s: %w", path, err)
			}

			cfg := config.Default()
			cfg.Ontologies = append(cfg.Ontologies, starterOntologies...)
			if interactive {
				var err error
				if cfg, err = runInteractiveInit(cmd); err != nil || cfg == nil {
					return err
				}
			}
			if err := config.WriteConfig(cfg, path); err != nil {
				return fmt.Errorf("write config file: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Created %s\n", path)
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Next steps:")
			fmt.Fprintln(out, "  1. Edit the ontologies list to the sources you validate against")
			fmt.Fprintln(out, "  2. Run 'ontograph load' to fetch, parse and cache them")
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "yaml", "config file format (yaml or toml)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "choose ontologies and cache settings interactively")

	return cmd
}
