package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	chatx "github.com/careloop/healthcoach/agent/chat"
	enginex "github.com/careloop/healthcoach/agent/engine"
	medicationx "github.com/careloop/healthcoach/agent/medication"
	promptx "github.com/careloop/healthcoach/agent/prompt"
	rosterx "github.com/careloop/healthcoach/agent/roster"
	runx "github.com/careloop/healthcoach/agent/run"
	threadx "github.com/careloop/healthcoach/agent/thread"
	toolx "github.com/careloop/healthcoach/agent/tool"
	configx "github.com/careloop/healthcoach/pkg/config"
	_ "github.com/careloop/healthcoach/pkg/logger/autoload"
	openaix "github.com/careloop/healthcoach/pkg/openaix"
	serverx "github.com/careloop/healthcoach/server"
)

type AppConfig struct {
	// PostgresDSN switches the medication store to Postgres; empty keeps
	// the in-memory store.
	PostgresDSN string `envconfig:"POSTGRES_DSN" split_words:"true"`
	// BackgroundsPath optionally overrides the agent display colors.
	BackgroundsPath string `envconfig:"BACKGROUNDS_PATH" split_words:"true"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appCfg := configx.MustNew[AppConfig]("")

	medications, err := buildMedicationStore(ctx, appCfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build medication store")
	}

	registry, err := buildRegistry(appCfg.BackgroundsPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build agent registry")
	}

	threads := threadx.NewStore()

	gateway, err := toolx.NewGateway(medications, threads)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build tool gateway")
	}

	client := openaix.NewClient(*configx.MustNew[openaix.Config]("OPENAI"))
	if client == nil {
		log.Fatal().Msg("OPENAI_API_KEY is not set")
	}

	engine, err := enginex.New(client, gateway, *configx.MustNew[enginex.Config]("ENGINE"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build engine")
	}

	coordinator, err := runx.New(engine, *configx.MustNew[runx.Config]("RUN"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build run coordinator")
	}

	chats, err := chatx.New(threads, medications, coordinator, registry)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build chat service")
	}

	srv, err := serverx.New(*configx.MustNew[serverx.Config]("SERVER"), chats, medications)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build server")
	}

	if err := srv.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("server exited with error")
	}
	log.Info().Msg("server stopped")
}

func buildMedicationStore(ctx context.Context, dsn string) (medicationx.Store, error) {
	if dsn == "" {
		return medicationx.NewMemoryStore(), nil
	}

	cfg := configx.MustNew[medicationx.PostgresConfig]("POSTGRES")
	cfg.DSN = dsn
	store, err := medicationx.NewPostgresStore(*cfg)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func buildRegistry(backgroundsPath string) (*rosterx.Registry, error) {
	var opts []rosterx.Option
	if backgroundsPath != "" {
		backgrounds, err := rosterx.LoadBackgrounds(backgroundsPath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, rosterx.WithBackgrounds(backgrounds))
	}
	return rosterx.New(promptx.LoadPromptSet(), opts...)
}
