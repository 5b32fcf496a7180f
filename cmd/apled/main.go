// Command apled is the composition root for the Agent Proposal
// Lifecycle Engine: it wires every domain package to either an
// in-memory or Postgres-backed store, starts the background scheduler,
// and serves the demo health endpoint. Grounded on
// cmd/appserver/main.go's flag/signal/shutdown shape; APLE has no
// REST surface of its own (spec.md §1), so this binary exists to prove
// the wiring compiles and runs end to end, not to serve traffic.
package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/R3E-Network/agent-proposal-engine/internal/domain/activity"
	"github.com/R3E-Network/agent-proposal-engine/internal/domain/agent"
	"github.com/R3E-Network/agent-proposal-engine/internal/domain/budget"
	"github.com/R3E-Network/agent-proposal-engine/internal/domain/execution"
	"github.com/R3E-Network/agent-proposal-engine/internal/domain/proposal"
	"github.com/R3E-Network/agent-proposal-engine/internal/domain/rules"
	"github.com/R3E-Network/agent-proposal-engine/internal/domain/webhook"
	"github.com/R3E-Network/agent-proposal-engine/internal/notify"
	"github.com/R3E-Network/agent-proposal-engine/internal/orchestrator"
	"github.com/R3E-Network/agent-proposal-engine/internal/platform/clock"
	"github.com/R3E-Network/agent-proposal-engine/internal/platform/config"
	"github.com/R3E-Network/agent-proposal-engine/internal/platform/httpapi"
	"github.com/R3E-Network/agent-proposal-engine/internal/platform/idgen"
	"github.com/R3E-Network/agent-proposal-engine/internal/platform/logging"
	"github.com/R3E-Network/agent-proposal-engine/internal/platform/resilience"
	"github.com/R3E-Network/agent-proposal-engine/internal/platform/scheduler"
	"github.com/R3E-Network/agent-proposal-engine/internal/store/memory"
	"github.com/R3E-Network/agent-proposal-engine/internal/store/postgres"
	"github.com/R3E-Network/agent-proposal-engine/internal/store/postgres/migrations"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address for the health probe (overrides config/env)")
	dsn := flag.String("dsn", "", "PostgreSQL DSN (overrides config/env; in-memory storage when empty)")
	runMigrations := flag.Bool("migrate", true, "run embedded database migrations on startup (ignored for in-memory)")
	flag.Parse()

	cfg := config.Load()
	if *addr != "" {
		cfg.HTTPAddr = *addr
	}
	if *dsn != "" {
		cfg.DatabaseDSN = *dsn
	}

	logger := logging.New("apled", cfg.LogLevel, cfg.LogFormat)

	agentStore, budgetStore, proposalStore, webhookStore, activityStore, db := openStores(cfg, *runMigrations, logger)
	if db != nil {
		defer db.Close()
	}

	c := clock.Real()
	ids := idgen.Default

	registry := agent.NewRegistry(agentStore, c, ids, logger)
	ledger := budget.NewLedger(budgetStore, c, ids)
	ruleEngine := rules.NewEngine()
	machine := proposal.NewMachine(proposalStore, c, ids)
	activityLog := activity.NewLog(activityStore, c, ids, logger)

	breakerCfg := resilience.Config{
		FailureThreshold: cfg.BreakerFailureThreshold,
		SuccessThreshold: cfg.BreakerSuccessThreshold,
		OpenTimeout:      cfg.BreakerOpenTimeout,
		ResetTimeout:     cfg.BreakerResetTimeout,
		OnStateChange: func(service string, from, to resilience.State) {
			logger.LogBreakerStateChange(context.Background(), service, from.String(), to.String())
		},
	}
	breakers := resilience.NewRegistry(breakerCfg, c)

	webhookClient := &http.Client{Timeout: cfg.WebhookTimeout}
	pipeline := webhook.NewPipeline(webhookStore, registry, breakers, webhookClient, c, ids, cfg.WebhookTimeout, logger)

	primary := execution.NewHTTPBackend(cfg.PrimaryExecutionURL, cfg.PrimaryExecutionToken, &http.Client{Timeout: cfg.ExecutionTimeout})
	secondary := execution.NewInProcessBackend(ids)
	bridge := execution.NewBridge(primary, secondary, breakers, cfg.ExecutionTimeout, func(ctx context.Context, reason error) {
		logger.Warn(ctx, "execution bridge fell back to secondary backend", map[string]interface{}{"reason": reason.Error()})
	})

	notifier := notify.NewLogNotifier(logger)
	if db != nil {
		notifier2 := notify.NewPgNotifier(db, logger)
		_ = notifier2 // Postgres-backed notifier is available once an owner-facing listener exists; log notifier remains the default.
	}

	orch := orchestrator.New(registry, ledger, ruleEngine, machine, pipeline, bridge, activityLog, notifier, logger)
	_ = orch

	sched := scheduler.New(logger)
	registerBackgroundJobs(sched, pipeline, ledger, breakers, logger, cfg)
	sched.Start()

	healthServer := &http.Server{Addr: cfg.HTTPAddr, Handler: httpapi.NewHealthRouter(breakers)}
	go func() {
		logger.Info(context.Background(), "apled health endpoint listening", map[string]interface{}{"addr": cfg.HTTPAddr})
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("health server: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sched.Stop(shutdownCtx)
	_ = healthServer.Shutdown(shutdownCtx)
}

func openStores(cfg *config.Config, runMigrations bool, logger *logging.Logger) (
	agent.Store, budget.Store, proposal.Store, webhook.Store, activity.Store, *sql.DB,
) {
	if cfg.DatabaseDSN == "" {
		logger.Info(context.Background(), "no DATABASE_URL set, using in-memory stores", nil)
		return memory.NewAgentStore(), memory.NewBudgetStore(), memory.NewProposalStore(),
			memory.NewWebhookStore(), memory.NewActivityStore(), nil
	}

	db, err := sql.Open("postgres", cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("connect to postgres: %v", err)
	}
	if err := db.Ping(); err != nil {
		log.Fatalf("ping postgres: %v", err)
	}
	if runMigrations {
		if err := migrations.Apply(context.Background(), db); err != nil {
			log.Fatalf("apply migrations: %v", err)
		}
	}
	store := postgres.New(db)
	return store, store, store, store, store, db
}

func registerBackgroundJobs(
	sched *scheduler.Scheduler,
	pipeline *webhook.Pipeline,
	ledger *budget.Ledger,
	breakers *resilience.Registry,
	logger *logging.Logger,
	cfg *config.Config,
) {
	ctx := context.Background()

	_ = sched.Register(ctx, scheduler.Job{
		Name: "webhook-due-scan",
		Spec: "@every 5s",
		Run: func(ctx context.Context) error {
			_, err := pipeline.ProcessDue(ctx)
			return err
		},
	})

	_ = sched.Register(ctx, scheduler.Job{
		Name: "budget-rollover-sweep",
		Spec: "@every 1m",
		Run: func(ctx context.Context) error {
			_, err := ledger.ResetExpired(ctx)
			return err
		},
	})

	_ = sched.Register(ctx, scheduler.Job{
		Name: "breaker-metrics-snapshot",
		Spec: "@every 30s",
		Run: func(ctx context.Context) error {
			for _, snap := range breakers.Snapshot() {
				logger.Info(ctx, "circuit breaker snapshot", map[string]interface{}{
					"service": snap.Service, "state": snap.State.String(),
					"failures": snap.Failures, "successes": snap.Successes,
				})
			}
			return nil
		},
	})

	_ = cfg // webhook/budget scan intervals are reserved for a future cron-expression override; @every literals above match cfg's current defaults.
}
