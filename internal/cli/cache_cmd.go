package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/imyousuf/ontograph/internal/config"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the parsed-ontology cache",
	}

	cmd.AddCommand(newCacheListCmd())
	cmd.AddCommand(newCacheClearCmd())

	return cmd
}

func newCacheListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cached ontologies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.Close()

			infos, err := s.cache.BlobStore().List(cmd.Context())
			if err != nil {
				return fmt.Errorf("list cache: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Cache: %s (%s)\n\n", s.cfg.Cache.Backend, s.cfg.ResolveCacheDir())
			if len(infos) == 0 {
				fmt.Fprintln(out, "No cached ontologies.")
				return nil
			}
			fmt.Fprintf(out, "%-10s  %-16s  %12s  %s\n", "Ontology", "Fingerprint", "Size", "Modified")
			fmt.Fprintf(out, "%-10s  %-16s  %12s  %s\n", "----------", "----------------", "------------", "--------")
			for _, info := range infos {
				mod := "-"
				if !info.ModTime.IsZero() {
					mod = info.ModTime.Format(time.RFC3339)
				}
				fmt.Fprintf(out, "%-10s  %-16s  %12d  %s\n", info.Key.Ontology, info.Key.Fingerprint, info.Size, mod)
			}
			fmt.Fprintf(out, "\n%d entr(ies)\n", len(infos))
			return nil
		},
	}
}

func newCacheClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached ontology",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.Close()

			if s.cfg.Cache.Backend == config.CacheBackendNone {
				fmt.Fprintln(cmd.OutOrStdout(), "Cache is disabled; nothing to clear.")
				return nil
			}
			if err := s.cache.BlobStore().Clear(cmd.Context()); err != nil {
				return fmt.Errorf("clear cache: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s cache at %s\n", s.cfg.Cache.Backend, s.cfg.ResolveCacheDir())
			return nil
		},
	}
}
