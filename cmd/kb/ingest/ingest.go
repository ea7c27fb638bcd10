// Package ingestcmder provides the ingest command that walks a directory and
// sends every matching file to a running kb server.
package ingestcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/kb/pkg/cliui"
	"github.com/papercomputeco/kb/pkg/client"
	"github.com/papercomputeco/kb/pkg/config"
	"github.com/papercomputeco/kb/pkg/logger"
	"github.com/papercomputeco/kb/pkg/walker"
)

type ingestCommander struct {
	root       string
	apiTarget  string
	extensions []string
	ignoreDirs []string
	watch      bool

	debug  bool
	viper  *viper.Viper
	logger *slog.Logger
}

var ingestFlags = []string{
	config.FlagAPITarget,
	config.FlagExtensions,
	config.FlagIgnoreDirs,
}

const ingestLongDesc string = `Ingest a directory tree into a running kb server.

Walks the directory (default: the current directory), skipping ignored
directories at any depth, and posts every file with an allowed extension to
/ingest. Each document id is the file's path relative to the root, so
re-ingesting a tree replaces documents instead of duplicating them.

With --watch, keeps running after the walk and re-ingests files as they are
created or modified.

Examples:
  kb ingest
  kb ingest ./src --extensions .go,.md
  kb ingest . --ignore-dirs node_modules,vendor --watch`

const ingestShortDesc string = "Ingest a directory tree"

func NewIngestCmd() *cobra.Command {
	cmder := &ingestCommander{}

	cmd := &cobra.Command{
		Use:   "ingest [dir]",
		Short: ingestShortDesc,
		Long:  ingestLongDesc,
		Args:  cobra.MaximumNArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.Registry, ingestFlags)
			cmder.viper = v
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.root = "."
			if len(args) == 1 {
				cmder.root = args[0]
			}

			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return cmder.run(ctx, cmd.OutOrStdout())
		},
	}

	config.AddStringFlag(cmd, config.Registry, config.FlagAPITarget, &cmder.apiTarget)
	config.AddStringSliceFlag(cmd, config.Registry, config.FlagExtensions, &cmder.extensions)
	config.AddStringSliceFlag(cmd, config.Registry, config.FlagIgnoreDirs, &cmder.ignoreDirs)
	cmd.Flags().BoolVarP(&cmder.watch, "watch", "w", false, "Keep running and re-ingest changed files")

	return cmd
}

func (c *ingestCommander) run(ctx context.Context, w io.Writer) error {
	c.logger = logger.New(logger.WithDebug(c.debug), logger.WithPretty(true), logger.WithComponent("ingest"))

	kb, err := client.New(c.viper.GetString("client.api_target"))
	if err != nil {
		return err
	}

	wc := walker.Config{
		Root:       c.root,
		Extensions: config.GetStringList(c.viper, "ingest.extensions"),
		IgnoreDirs: config.GetStringList(c.viper, "ingest.ignore_dirs"),
	}

	sink := newSink(kb, c.logger)

	var stats walker.Stats
	err = cliui.Step(w, fmt.Sprintf("Ingesting %s", c.root), func() error {
		var walkErr error
		stats, walkErr = walker.Walk(ctx, wc, sink, c.logger)
		return walkErr
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "\n  %s\n  %s\n  %s\n\n",
		cliui.KeyValue("Ingested", fmt.Sprint(stats.Ingested)),
		cliui.KeyValue("Skipped ", fmt.Sprint(stats.Skipped)),
		cliui.KeyValue("Failed  ", fmt.Sprint(stats.Failed)),
	)

	if !c.watch {
		if stats.Failed > 0 {
			return fmt.Errorf("%d files failed to ingest", stats.Failed)
		}
		return nil
	}

	fmt.Fprintf(w, "  %s\n", cliui.DimStyle.Render("Watching for changes, press Ctrl+C to stop."))
	if err := walker.Watch(ctx, wc, sink, c.logger); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// newSink posts each document to the server and warns when the server stored
// a zero-vector embedding.
func newSink(kb *client.Client, log *slog.Logger) walker.Sink {
	return walker.SinkFunc(func(ctx context.Context, doc walker.Document) error {
		res, err := kb.Ingest(ctx, doc.ID, doc.Text, doc.Metadata)
		if err != nil {
			return err
		}
		if res.Degraded {
			log.Warn("document stored with a zero-vector embedding", "id", doc.ID)
		} else {
			log.Debug("ingested", "id", doc.ID)
		}
		return nil
	})
}
