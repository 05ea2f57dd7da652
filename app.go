package main

import (
	"fmt"

	"github.com/charmbracelet/log"

	"marketing-groupchat/agent"
	"marketing-groupchat/client"
	"marketing-groupchat/groupchat"
	"marketing-groupchat/metrics"
	"marketing-groupchat/router"
	"marketing-groupchat/termination"
	"marketing-groupchat/transcript"
)

// app holds everything wired together for one process.
type app struct {
	registry  *agent.Registry
	client    *client.APIClient
	loop      *groupchat.Loop
	metrics   *metrics.Recorder
	workspace *transcript.Workspace
}

func newApp(cfg Config, logger *log.Logger) (*app, error) {
	roster, err := loadRoster(cfg.RosterFile)
	if err != nil {
		return nil, err
	}
	registry, err := roster.Registry()
	if err != nil {
		return nil, fmt.Errorf("invalid roster: %w", err)
	}

	recorder := metrics.NewRecorder()

	clientCfg := cfg.ClientConfig()
	clientCfg.Logger = logger
	clientCfg.Metrics = recorder
	mc, err := client.NewAPIClient(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create model client: %w", err)
	}

	routing, err := newRouter(cfg, mc, registry, roster.Start, logger, recorder)
	if err != nil {
		mc.Close()
		return nil, err
	}

	var term termination.Oracle
	switch cfg.TerminationMode {
	case TerminationReply:
		term = termination.NewReplyOracle(cfg.KeywordPolicy())
	default:
		term = termination.NewModelOracle(mc, cfg.KeywordPolicy(), logger)
	}

	loop, err := groupchat.New(registry, mc, routing, term, groupchat.Options{
		Start:         roster.Start,
		Terminal:      roster.Terminal,
		MaxIterations: cfg.MaxIterations,
		HistoryWindow: cfg.HistoryWindow,
		Logger:        logger,
		Metrics:       recorder,
		OnTransition: func(from, to groupchat.State) {
			logger.Debug("State transition", "from", from, "to", to)
		},
	})
	if err != nil {
		mc.Close()
		return nil, err
	}
	loop.Start()

	logger.Info("Group chat ready",
		"host", clientCfg.Host,
		"model", mc.Model(),
		"participants", registry.Names(),
		"routing", cfg.RoutingMode,
		"termination", cfg.TerminationMode,
	)

	return &app{
		registry:  registry,
		client:    mc,
		loop:      loop,
		metrics:   recorder,
		workspace: transcript.NewWorkspace(cfg.WorkspaceDir),
	}, nil
}

func newRouter(cfg Config, mc client.ModelClient, registry *agent.Registry, start string, logger *log.Logger, recorder *metrics.Recorder) (router.Oracle, error) {
	if cfg.RoutingMode == RoutingModel {
		return router.NewModelOracle(mc, registry, start,
			router.WithLogger(logger),
			router.WithMetrics(recorder),
			router.WithStructuredOutput(cfg.APIHost != string(client.HostOllama)),
		)
	}
	return router.NewCyclic(registry, start)
}

func loadRoster(path string) (*agent.Roster, error) {
	if path == "" {
		return agent.DefaultRoster()
	}
	return agent.LoadRoster(path)
}

func (a *app) Close() {
	a.client.Close()
}
