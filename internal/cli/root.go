// Package cli implements the command-line interface for ontograph.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "ontograph",
	Short: "ontograph - ontology term graphs for annotation validation",
	Long: `ontograph loads biomedical ontologies (OBO format), keeps their term
graphs and transitive closures in memory, caches the parsed result between
runs, and answers the questions a validator asks: what term does this
identifier name, which terms carry this name, and is this term inside that
subtree.

Commands:
  init         Write a starter .ontograph.yaml
  load         Load every configured ontology and report
  resolve      Resolve identifiers (URN, URL, CURIE) to terms
  search       Find terms by name or synonym
  check        Test whether a term lies under a root
  ancestors    List transitive ancestors of a term
  descendants  List transitive descendants of a term
  parents      List direct parents of a term
  children     List direct children of a term
  roots        List the root terms of an ontology
  cache        Inspect or clear the parsed-ontology cache
  watch        Refresh the cache as local sources change
  config       Show the effective configuration`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: .ontograph.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	// Bind flags to viper
	bindFlag := func(key, flag string) {
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(fmt.Sprintf("failed to bind %s flag: %v", flag, err))
		}
	}
	bindFlag("config_file", "config")

	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newLoadCmd())
	rootCmd.AddCommand(newResolveCmd())
	rootCmd.AddCommand(newSearchCmd())
	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newClosureCmd("ancestors"))
	rootCmd.AddCommand(newClosureCmd("descendants"))
	rootCmd.AddCommand(newNeighborsCmd("parents"))
	rootCmd.AddCommand(newNeighborsCmd("children"))
	rootCmd.AddCommand(newRootsCmd())
	rootCmd.AddCommand(newCacheCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}
