package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/imyousuf/ontograph/internal/config"
	"github.com/imyousuf/ontograph/internal/loader"
	"github.com/imyousuf/ontograph/internal/source"
	"github.com/imyousuf/ontograph/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Keep the cache current as local sources change",
		Long: `Watch every configured ontology that is read from a local file. When a
file changes it is re-parsed and its cache entry replaced, so the next
process to load it starts warm. Remote and resource sources are skipped.
Runs until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.Close()

			byPath := make(map[string]config.OntologySource)
			var files []string
			for _, o := range s.cfg.Ontologies {
				p, ok := source.LocalPath(o.Source)
				if !ok {
					continue
				}
				abs, err := filepath.Abs(p)
				if err != nil {
					return err
				}
				byPath[abs] = o
				files = append(files, abs)
			}
			if len(files) == 0 {
				return fmt.Errorf("no configured ontology is read from a local file")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			l := s.loader
			out := cmd.OutOrStdout()
			for _, f := range files {
				refresh(ctx, cmd, l, byPath[f])
			}

			w, err := watcher.New(watcher.Config{Files: files, Logger: s.log})
			if err != nil {
				return err
			}
			defer w.Close()
			events, err := w.Start(ctx)
			if err != nil {
				return fmt.Errorf("start watcher: %w", err)
			}
			fmt.Fprintf(out, "Watching %d source(s); press Ctrl-C to stop\n", len(files))

			for ev := range events {
				if ev.Op == watcher.Remove {
					s.log.Warn("source removed", "path", ev.Path)
					continue
				}
				refresh(ctx, cmd, l, byPath[ev.Path])
			}
			return nil
		},
	}
}

// refresh reloads one source, which rewrites its cache entry when the
// content changed. Failures are reported and watching continues.
func refresh(ctx context.Context, cmd *cobra.Command, l *loader.Loader, src config.OntologySource) {
	res, err := l.Load(ctx, src)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", src.ID, err)
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d terms from %s (%s)\n", src.ID, res.Graph.Len(), res.Origin, res.Fingerprint)
}
