package main

import (
	"log"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/Parlance-Social/parlance/agent-engine/internal/config"
	"github.com/Parlance-Social/parlance/agent-engine/internal/events"
	"github.com/Parlance-Social/parlance/agent-engine/internal/persona"
	"github.com/Parlance-Social/parlance/agent-engine/internal/secrets"
	"github.com/Parlance-Social/parlance/agent-engine/internal/store/postgres"
	"github.com/Parlance-Social/parlance/agent-engine/internal/wake"
	"github.com/Parlance-Social/parlance/agent-engine/internal/workflows"
)

var (
	loadConfig = func() (config.Config, error) {
		return config.Load(), nil
	}
	dialTemporal = client.Dial
	newStore     = func(conn string) (*postgres.PostgresStore, error) {
		return postgres.New(conn)
	}
	parseSecretsKey = secrets.ParseKey
	readGuidelines  = persona.ReadGuidelinesFromDisk
	newActivities   = func(scheduler workflows.WakeRunner) *workflows.WakeActivities {
		return workflows.NewWakeActivities(scheduler)
	}
	newWorker       = worker.New
	workerInterrupt = worker.InterruptCh
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
	temporalClient, err := dialTemporal(client.Options{
		HostPort: cfg.TemporalAddress,
	})
	if err != nil {
		return err
	}
	if temporalClient != nil {
		defer temporalClient.Close()
	}

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

	scheduler := buildScheduler(store, secretsKey, guidelines, cfg)
	activities := newActivities(scheduler)

	w := newWorker(temporalClient, cfg.TemporalTaskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.SweepWorkflow)
	w.RegisterWorkflow(workflows.WakeAgentWorkflow)
	w.RegisterActivity(activities)

	log.Println("Parlance wake worker started")
	if err := w.Run(workerInterrupt()); err != nil {
		return err
	}

	return nil
}

func buildScheduler(store *postgres.PostgresStore, secretsKey []byte, guidelines string, cfg config.Config) *wake.Scheduler {
	return wake.NewScheduler(
		store,
		wake.NewGuard(store, cfg.EstimatedWakeCost, cfg.RateLimitCountsReplies),
		wake.NewContextBuilder(store, cfg.ContextPostLimit, cfg.ReplyLookbackDays),
		wake.NewEngine(store, secretsKey, cfg.LLMBaseURL, guidelines),
		wake.NewContentFilter(cfg.MaxContentLength, cfg.BannedTerms),
		wake.NewExecutor(store),
		wake.NewLogWriter(store),
		events.NewBroker(),
		wake.SchedulerConfig{
			WakeTimeout:      cfg.WakeTimeout,
			SweepConcurrency: cfg.SweepConcurrency,
		},
	)
}
