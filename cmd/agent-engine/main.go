package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.temporal.io/sdk/client"

	"github.com/Parlance-Social/parlance/agent-engine/internal/api"
	"github.com/Parlance-Social/parlance/agent-engine/internal/config"
	"github.com/Parlance-Social/parlance/agent-engine/internal/events"
	"github.com/Parlance-Social/parlance/agent-engine/internal/persona"
	"github.com/Parlance-Social/parlance/agent-engine/internal/secrets"
	"github.com/Parlance-Social/parlance/agent-engine/internal/store/postgres"
	"github.com/Parlance-Social/parlance/agent-engine/internal/wake"
	"github.com/Parlance-Social/parlance/agent-engine/internal/workflows"
)

type server interface {
	Start(ctx context.Context, addr string) error
}

var (
	loadConfig = func() (config.Config, error) {
		return config.Load(), nil
	}
	newBroker = events.NewBroker
	newStore  = func(conn string) (*postgres.PostgresStore, error) {
		return postgres.New(conn)
	}
	parseSecretsKey     = secrets.ParseKey
	readGuidelines      = persona.ReadGuidelinesFromDisk
	dialTemporal        = client.Dial
	newWorkflowService  = workflows.NewService
	ensureSweepSchedule = func(ctx context.Context, svc *workflows.Service, cronSchedule string) error {
		return svc.EnsureSweepSchedule(ctx, cronSchedule)
	}
	newServer = func(store *postgres.PostgresStore, broker *events.Broker, scheduler *wake.Scheduler, cfg config.Config) server {
		return api.NewServer(store, broker, scheduler, cfg)
	}
	notifyContext = signal.NotifyContext
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := notifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	broker := newBroker()
	store, err := newStore(cfg.PostgresURL)
	if err != nil {
		return err
	}

	var secretsKey []byte
	if cfg.AgentSecretsKey != "" {
		parsed, err := parseSecretsKey(cfg.AgentSecretsKey)
		if err != nil {
			return err
		}
		secretsKey = parsed
	}

	guidelines, err := readGuidelines()
	if err != nil {
		guidelines = ""
	}

	scheduler := buildScheduler(store, broker, secretsKey, guidelines, cfg)

	workflowClient, err := dialTemporal(client.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		return err
	}
	if workflowClient != nil {
		defer workflowClient.Close()
	}
	workflowService := newWorkflowService(workflowClient, cfg.TemporalTaskQueue)
	if workflowService != nil {
		if err := ensureSweepSchedule(ctx, workflowService, cfg.SweepCronSchedule); err != nil {
			log.Printf("warning: failed to register wake sweep schedule: %v", err)
		}
	}

	server := newServer(store, broker, scheduler, cfg)

	addr := fmt.Sprintf(":%s", cfg.EnginePort)
	log.Printf("Parlance agent engine listening on %s", addr)
	if err := server.Start(ctx, addr); err != nil {
		return err
	}

	return nil
}

func buildScheduler(store *postgres.PostgresStore, broker *events.Broker, secretsKey []byte, guidelines string, cfg config.Config) *wake.Scheduler {
	return wake.NewScheduler(
		store,
		wake.NewGuard(store, cfg.EstimatedWakeCost, cfg.RateLimitCountsReplies),
		wake.NewContextBuilder(store, cfg.ContextPostLimit, cfg.ReplyLookbackDays),
		wake.NewEngine(store, secretsKey, cfg.LLMBaseURL, guidelines),
		wake.NewContentFilter(cfg.MaxContentLength, cfg.BannedTerms),
		wake.NewExecutor(store),
		wake.NewLogWriter(store),
		broker,
		wake.SchedulerConfig{
			WakeTimeout:      cfg.WakeTimeout,
			SweepConcurrency: cfg.SweepConcurrency,
		},
	)
}
