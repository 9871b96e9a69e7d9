// Command formweaver runs the form-building agent service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"go.uber.org/zap"

	"github.com/formweaver/formweaver/internal/agent/generate"
	"github.com/formweaver/formweaver/internal/agent/orchestrator"
	"github.com/formweaver/formweaver/internal/agent/tools"
	"github.com/formweaver/formweaver/internal/common/config"
	"github.com/formweaver/formweaver/internal/common/logger"
	"github.com/formweaver/formweaver/internal/form/service"
	"github.com/formweaver/formweaver/internal/form/store"
	"github.com/formweaver/formweaver/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "formweaver: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:  cfg.Model.APIKey,
		Model:   cfg.Model.Name,
		BaseURL: cfg.Model.BaseURL,
	})
	if err != nil {
		return fmt.Errorf("init chat model: %w", err)
	}

	planner, err := generate.NewPlanner(chatModel)
	if err != nil {
		return fmt.Errorf("init planner: %w", err)
	}
	questions, err := generate.NewQuestionGenerator(chatModel)
	if err != nil {
		return fmt.Errorf("init question generator: %w", err)
	}
	patches, err := generate.NewPatchGenerator(chatModel)
	if err != nil {
		return fmt.Errorf("init patch generator: %w", err)
	}

	forms := service.New(st, log)
	deps := &tools.Deps{
		Service:    forms,
		Planner:    planner,
		Questions:  questions,
		Patches:    patches,
		Log:        log,
		GenTimeout: cfg.Model.GenerationTimeout,
	}

	orch := orchestrator.New(
		chatModel,
		tools.All(deps),
		generate.NewReplyGenerator(chatModel),
		st,
		cfg.Model.MaxSteps,
		log,
	)

	srv := server.New(cfg, orch, forms, deps, log)
	log.Info("starting formweaver",
		zap.String("model", cfg.Model.Name),
		zap.Int("max_steps", cfg.Model.MaxSteps))
	return srv.Run(ctx)
}
