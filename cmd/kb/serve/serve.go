// Package servecmder provides the serve command that runs the kb HTTP and
// MCP server over a snapshot-backed store.
package servecmder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/kb/api"
	"github.com/papercomputeco/kb/api/mcp"
	"github.com/papercomputeco/kb/pkg/config"
	"github.com/papercomputeco/kb/pkg/dotdir"
	"github.com/papercomputeco/kb/pkg/embeddings"
	embeddingutils "github.com/papercomputeco/kb/pkg/embeddings/utils"
	"github.com/papercomputeco/kb/pkg/eventstream"
	"github.com/papercomputeco/kb/pkg/eventstream/kafka"
	"github.com/papercomputeco/kb/pkg/eventstream/nop"
	"github.com/papercomputeco/kb/pkg/ingest"
	"github.com/papercomputeco/kb/pkg/logger"
	"github.com/papercomputeco/kb/pkg/query"
	"github.com/papercomputeco/kb/pkg/store"
	"github.com/papercomputeco/kb/pkg/store/snapshot"
)

// shutdownTimeout bounds the final snapshot flush on exit.
const shutdownTimeout = 30 * time.Second

type serveCommander struct {
	listen            string
	storageProvider   string
	storagePath       string
	flushMode         string
	flushEvery        uint
	embeddingProvider string
	embeddingTarget   string
	embeddingModel    string
	embeddingDims     uint
	eventsProvider    string
	eventsBrokers     []string
	eventsTopic       string

	logFile   string
	debug     bool
	configDir string

	viper  *viper.Viper
	logger *slog.Logger
}

var serveFlags = []string{
	config.FlagAPIListen,
	config.FlagStorageProvider,
	config.FlagStoragePath,
	config.FlagFlushMode,
	config.FlagFlushEvery,
	config.FlagEmbeddingProv,
	config.FlagEmbeddingTgt,
	config.FlagEmbeddingModel,
	config.FlagEmbeddingDims,
	config.FlagEventsProvider,
	config.FlagEventsBrokers,
	config.FlagEventsTopic,
}

const serveLongDesc string = `Run the kb server.

Serves the HTTP API (/ingest, /query, /health, /v1/documents/*) and the MCP
endpoint (/mcp) over a single in-memory store. The store is loaded from its
snapshot at startup and written back after every mutation, or every
--flush-every mutations in batched mode.

Values come from flags, then KB_* environment variables, then config.toml,
then defaults.

Examples:
  kb serve
  kb serve --listen :9001 --storage-path ./kb.json.zst
  kb serve --embedding-provider none
  kb serve --events-provider kafka --events-brokers localhost:9092`

const serveShortDesc string = "Run the kb server"

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.Registry, serveFlags)
			cmder.viper = v
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return cmder.run(ctx)
		},
	}

	config.AddStringFlag(cmd, config.Registry, config.FlagAPIListen, &cmder.listen)
	config.AddStringFlag(cmd, config.Registry, config.FlagStorageProvider, &cmder.storageProvider)
	config.AddStringFlag(cmd, config.Registry, config.FlagStoragePath, &cmder.storagePath)
	config.AddStringFlag(cmd, config.Registry, config.FlagFlushMode, &cmder.flushMode)
	config.AddUintFlag(cmd, config.Registry, config.FlagFlushEvery, &cmder.flushEvery)
	config.AddStringFlag(cmd, config.Registry, config.FlagEmbeddingProv, &cmder.embeddingProvider)
	config.AddStringFlag(cmd, config.Registry, config.FlagEmbeddingTgt, &cmder.embeddingTarget)
	config.AddStringFlag(cmd, config.Registry, config.FlagEmbeddingModel, &cmder.embeddingModel)
	config.AddUintFlag(cmd, config.Registry, config.FlagEmbeddingDims, &cmder.embeddingDims)
	config.AddStringFlag(cmd, config.Registry, config.FlagEventsProvider, &cmder.eventsProvider)
	config.AddStringSliceFlag(cmd, config.Registry, config.FlagEventsBrokers, &cmder.eventsBrokers)
	config.AddStringFlag(cmd, config.Registry, config.FlagEventsTopic, &cmder.eventsTopic)
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also write JSON logs to this file")

	return cmd
}

func (c *serveCommander) run(ctx context.Context) error {
	var closeLog func()
	var err error
	c.logger, closeLog, err = c.newLogger()
	if err != nil {
		return err
	}
	defer closeLog()

	s, err := newStack(ctx, c.viper, c.configDir, c.logger)
	if err != nil {
		return err
	}
	defer s.close(c.logger)

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		c.logger.Info("received signal, shutting down")
		if err := s.server.Shutdown(); err != nil {
			c.logger.Error("shutting down API server", "error", err)
		}
		return nil
	}
}

// newLogger writes pretty logs to stdout and, with --log-file, JSON logs to
// the file as well.
func (c *serveCommander) newLogger() (*slog.Logger, func(), error) {
	stdout := logger.New(logger.WithDebug(c.debug), logger.WithPretty(true))
	if c.logFile == "" {
		return stdout, func() {}, nil
	}

	file, closer, err := logger.File(c.logFile, logger.WithDebug(c.debug))
	if err != nil {
		return nil, nil, err
	}

	return logger.Multi(stdout, file), func() { _ = closer.Close() }, nil
}

// stack is every long-lived component behind the server.
type stack struct {
	gateway *embeddings.Gateway
	store   *store.Store
	ingest  *ingest.Service
	engine  *query.Engine
	server  *api.Server
}

func newStack(ctx context.Context, v *viper.Viper, configDir string, log *slog.Logger) (*stack, error) {
	s := &stack{}
	ok := false
	defer func() {
		if !ok {
			s.close(log)
		}
	}()

	var err error
	s.gateway, err = newGateway(v, log)
	if err != nil {
		return nil, err
	}

	s.store, err = newStore(ctx, v, configDir, log)
	if err != nil {
		return nil, err
	}

	pool, err := newEventPool(v, log)
	if err != nil {
		return nil, err
	}

	host, _ := os.Hostname()
	s.ingest = ingest.NewService(ingest.Config{
		Store:   s.store,
		Gateway: s.gateway,
		Events:  pool,
		Host:    host,
	}, log)
	s.engine = query.NewEngine(s.store, s.gateway, log)

	mcpServer, err := mcp.NewServer(mcp.Config{
		Engine: s.engine,
		Ingest: s.ingest,
		Logger: log,
	})
	if err != nil {
		return nil, fmt.Errorf("creating MCP server: %w", err)
	}

	s.server, err = api.NewServer(api.Config{
		ListenAddr: v.GetString("api.listen"),
		Store:      s.store,
		Engine:     s.engine,
		Ingest:     s.ingest,
		MCP:        mcpServer,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("creating API server: %w", err)
	}

	ok = true
	return s, nil
}

// close drains events, flushes the store and closes the embedder.
func (s *stack) close(log *slog.Logger) {
	if s.ingest != nil {
		if err := s.ingest.Close(); err != nil {
			log.Error("closing event publisher", "error", err)
		}
	}

	if s.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.store.Close(ctx); err != nil {
			log.Error("closing store", "error", err)
		}
	}

	if s.gateway != nil {
		if err := s.gateway.Close(); err != nil {
			log.Error("closing embedder", "error", err)
		}
	}
}

func newGateway(v *viper.Viper, log *slog.Logger) (*embeddings.Gateway, error) {
	provider := v.GetString("embedding.provider")

	embedder, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
		ProviderType: provider,
		TargetURL:    v.GetString("embedding.target"),
		Model:        v.GetString("embedding.model"),
		APIKey:       v.GetString("embedding.api_key"),
		Dimensions:   v.GetInt("embedding.dimensions"),
		Logger:       log,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	timeout, err := config.EmbeddingConfig{Timeout: v.GetString("embedding.timeout")}.TimeoutDuration()
	if err != nil {
		return nil, err
	}

	if embedder == nil {
		log.Warn("no embedding provider configured, all vectors will be zero")
	} else {
		log.Info("using embedding provider",
			"provider", provider,
			"model", v.GetString("embedding.model"),
		)
	}

	return embeddings.NewGateway(embedder, embeddings.GatewayConfig{
		Dimensions: v.GetInt("embedding.dimensions"),
		Timeout:    timeout,
	}, log), nil
}

func newStore(ctx context.Context, v *viper.Viper, configDir string, log *slog.Logger) (*store.Store, error) {
	provider := v.GetString("storage.provider")

	path := ""
	if provider == snapshot.ProviderFile || provider == snapshot.ProviderSQLite {
		dir, err := dotdir.NewManager().Target(configDir)
		if err != nil {
			return nil, fmt.Errorf("resolving kb dir: %w", err)
		}
		if provider == snapshot.ProviderSQLite {
			path = config.SQLitePath(v.GetString("storage.path"), dir)
		} else {
			path = config.SnapshotPath(v.GetString("storage.path"), dir)
		}
	}

	persister, err := snapshot.New(ctx, snapshot.Config{
		Provider:  provider,
		Path:      path,
		DSN:       v.GetString("storage.dsn"),
		Endpoint:  v.GetString("storage.endpoint"),
		Bucket:    v.GetString("storage.bucket"),
		Key:       v.GetString("storage.key"),
		AccessKey: v.GetString("storage.access_key"),
		SecretKey: v.GetString("storage.secret_key"),
		Secure:    v.GetBool("storage.secure"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating snapshot persister: %w", err)
	}

	policy, err := store.ParseFlushPolicy(v.GetString("storage.flush_mode"))
	if err != nil {
		_ = persister.Close()
		return nil, err
	}

	log.Info("opening store",
		"provider", provider,
		"path", path,
		"flush_mode", policy.String(),
	)

	return store.Open(ctx, store.Config{
		Persister:   persister,
		FlushPolicy: policy,
		FlushEvery:  v.GetInt("storage.flush_every"),
	}, log)
}

func newEventPool(v *viper.Viper, log *slog.Logger) (*ingest.Pool, error) {
	var publisher eventstream.Publisher

	switch provider := v.GetString("events.provider"); provider {
	case "", "none":
		publisher = nop.NewPublisher()
	case "kafka":
		p, err := kafka.NewPublisher(kafka.Config{
			Brokers: config.GetStringList(v, "events.brokers"),
			Topic:   v.GetString("events.topic"),
		})
		if err != nil {
			return nil, fmt.Errorf("creating kafka publisher: %w", err)
		}
		log.Info("publishing document events", "provider", provider, "topic", p.Topic())
		publisher = p
	default:
		return nil, errors.New("unsupported events provider: " + provider)
	}

	return ingest.NewPool(&ingest.PoolConfig{
		Publisher: publisher,
		Logger:    log,
	})
}
