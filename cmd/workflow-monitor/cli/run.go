package cli

import (
	"context"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/davarch/workflow-monitor/internal/application"
	"github.com/davarch/workflow-monitor/internal/infrastructure/artifact_http"
	"github.com/davarch/workflow-monitor/internal/infrastructure/config"
	"github.com/davarch/workflow-monitor/internal/infrastructure/lock_flock"
	"github.com/davarch/workflow-monitor/internal/infrastructure/logging"
	"github.com/davarch/workflow-monitor/internal/infrastructure/mail_smtp"
	"github.com/davarch/workflow-monitor/internal/infrastructure/statuscache_fs"
	"github.com/davarch/workflow-monitor/internal/infrastructure/store_sqlite"
	"github.com/davarch/workflow-monitor/internal/infrastructure/testservice_http"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the monitoring scheduler",
	Run: func(cmd *cobra.Command, args []string) {
		log := logging.New()
		defer func() { _ = log.Sync() }()

		cfg, err := config.Load(cfgPath)
		if err != nil {
			log.Fatal("config", zap.Error(err))
		}

		store, err := store_sqlite.Open(cfg.Store.Path)
		if err != nil {
			log.Fatal("store", zap.Error(err))
		}
		defer func() { _ = store.Close() }()

		gateway := testservice_http.New(cfg.Testing.Token, cfg.Testing.Timeout)
		artifacts := artifact_http.New(cfg.Testing.Timeout)
		locks := lock_flock.New(cfg.Locks.Dir)
		mailer := mail_smtp.New(mail_smtp.Options{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
		statusOut := statuscache_fs.New(cfg.Monitor.StatusPath)

		aggregator := application.NewStatusAggregator(gateway)
		factory := application.NewNotificationFactory(store, log)
		dispatcher := application.NewDispatcher(store, store, mailer, log)
		workflowPoller := application.NewWorkflowPoller(store, store, locks, artifacts, log)
		buildPoller := application.NewBuildPoller(store, store, gateway, locks, factory, aggregator, statusOut, log)

		jobs, err := jobTable(cfg, log, workflowPoller, buildPoller, dispatcher)
		if err != nil {
			log.Fatal("job table", zap.Error(err))
		}

		sched := application.NewScheduler(log, jobs, cfg.Monitor.Workers, cfg.Monitor.PauseFile)
		watchConfig(cfgPath, log, sched)

		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		log.Info("start",
			zap.String("version", version),
			zap.String("store", cfg.Store.Path),
			zap.String("locks", cfg.Locks.Dir),
			zap.Duration("workflow_timeout", cfg.Monitor.WorkflowTimeout),
			zap.Duration("build_timeout", cfg.Monitor.BuildTimeout),
			zap.Int("workers", cfg.Monitor.Workers),
			zap.Bool("smtp", cfg.SMTP.Host != ""),
		)
		sched.Run(ctx)
	},
}

// jobTable builds the full schedule at process start. Intervals derive
// from the refresh windows: polling fires at 3/4 of each window so data
// never goes stale between ticks.
func jobTable(
	cfg config.Config,
	log *zap.Logger,
	workflowPoller *application.WorkflowPoller,
	buildPoller *application.BuildPoller,
	dispatcher *application.Dispatcher,
) ([]application.Job, error) {
	everyMinute, err := application.NewCronTrigger("* * * * *")
	if err != nil {
		return nil, err
	}
	nightly, err := application.NewCronTrigger("0 1 * * *")
	if err != nil {
		return nil, err
	}

	maxAge := cfg.Monitor.JobMaxAge
	return []application.Job{
		{
			Name:       "heartbeat",
			Trigger:    everyMinute,
			MaxRetries: 3,
			MaxAge:     maxAge,
			Body: func(context.Context) error {
				log.Info("heartbeat")
				return nil
			},
		},
		{
			Name:       "check_workflows",
			Trigger:    application.IntervalTrigger{Every: cfg.Monitor.WorkflowTimeout * 3 / 4},
			MaxRetries: 3,
			MaxAge:     maxAge,
			Body:       workflowPoller.Run,
		},
		{
			Name:       "check_last_builds",
			Trigger:    application.IntervalTrigger{Every: cfg.Monitor.BuildTimeout * 3 / 4},
			MaxRetries: 3,
			MaxAge:     maxAge,
			Body:       buildPoller.Run,
		},
		{
			Name:       "send_email_notifications",
			Trigger:    application.IntervalTrigger{Every: 60 * time.Second},
			MaxRetries: 0,
			MaxAge:     maxAge,
			Body: func(ctx context.Context) error {
				count, err := dispatcher.DispatchPending(ctx)
				if err != nil {
					return err
				}
				if count > 0 {
					log.Info("notifications sent by email", zap.Int("count", count))
				}
				return nil
			},
		},
		{
			Name:       "check_email_configuration",
			Trigger:    application.IntervalTrigger{Every: 60 * time.Second},
			MaxRetries: 0,
			MaxAge:     maxAge,
			Body:       dispatcher.CheckMissingEmail,
		},
		{
			Name:       "cleanup_notifications",
			Trigger:    nightly,
			MaxRetries: 0,
			MaxAge:     maxAge,
			Body: func(ctx context.Context) error {
				_, err := dispatcher.PurgeOlderThan(ctx, cfg.Monitor.Retention)
				return err
			},
		},
	}, nil
}

// watchConfig kicks an immediate build poll when the config file
// changes, so newly enabled workflows are picked up without waiting a
// full interval.
func watchConfig(cfgPath string, log *zap.Logger, sched *application.Scheduler) {
	if cfgPath == "" {
		return
	}

	dir := filepath.Dir(cfgPath)
	base := filepath.Base(cfgPath)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn("fsnotify init failed", zap.Error(err))
		return
	}

	go func() {
		defer func() { _ = w.Close() }()

		var timer *time.Timer
		fire := func() {
			log.Info("config changed, kicking build poll")
			sched.Kick("check_last_builds")
		}

		startTimer := func() {
			if timer == nil {
				timer = time.AfterFunc(300*time.Millisecond, fire)
			} else {
				timer.Reset(300 * time.Millisecond)
			}
		}

		if err := w.Add(dir); err != nil {
			log.Warn("fsnotify add dir failed", zap.String("dir", dir), zap.Error(err))
			return
		}

		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}

				if filepath.Base(ev.Name) != base {
					continue
				}

				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					startTimer()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn("fsnotify error", zap.Error(err))
			}
		}
	}()
}

func init() {
	rootCmd.AddCommand(runCmd)
}
