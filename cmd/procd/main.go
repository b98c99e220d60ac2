// procd runs the process engine as a daemon: it deploys the configured
// definitions, starts the job executor, and serves until interrupted.
package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/goliatone/go-logger/glog"

	process "github.com/goliatone/go-process"
	"github.com/goliatone/go-process/engine"
	"github.com/goliatone/go-process/store"
)

var cli struct {
	Config string `help:"Path to the yaml config file." type:"path" short:"c"`

	Run    RunCmd    `cmd:"" help:"Run the engine daemon."`
	Deploy DeployCmd `cmd:"" help:"Validate definition files without running."`
	Jobs   struct {
		Failed FailedCmd `cmd:"" help:"List jobs that exhausted their retries."`
		Retry  RetryCmd  `cmd:"" help:"Reset retries on a failed job."`
	} `cmd:"" help:"Inspect and revive durable jobs."`
}

// cliEnv carries the loaded config and logger into command Run methods.
type cliEnv struct {
	cfg    Config
	logger process.Logger
}

func main() {
	ktx := kong.Parse(&cli,
		kong.Name("procd"),
		kong.Description("Business process execution engine daemon."),
		kong.UsageOnError(),
	)

	cfg, err := LoadConfig(cli.Config)
	ktx.FatalIfErrorf(err)

	env := &cliEnv{cfg: cfg, logger: newLogger(cfg.LogLevel)}
	ktx.FatalIfErrorf(ktx.Run(env))
}

// newLogger builds the daemon logger on go-logger's glog with the process
// Logger contract layered over it.
func newLogger(level string) process.Logger {
	if level == "" {
		level = "info"
	}
	base := glog.NewLogger(
		glog.WithLevel(level),
		glog.WithLoggerTypeJSON(),
	)
	return glogAdapter{logger: base}
}

type glogAdapter struct {
	logger glog.Logger
}

func (l glogAdapter) Trace(msg string, args ...any) { l.logger.Trace(msg, args...) }
func (l glogAdapter) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l glogAdapter) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l glogAdapter) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l glogAdapter) Error(msg string, args ...any) { l.logger.Error(msg, args...) }
func (l glogAdapter) Fatal(msg string, args ...any) { l.logger.Fatal(msg, args...) }

func (l glogAdapter) WithContext(ctx context.Context) process.Logger {
	return glogAdapter{logger: l.logger.WithContext(ctx)}
}

func (l glogAdapter) WithFields(fields map[string]any) process.Logger {
	if fl, ok := l.logger.(glog.FieldsLogger); ok {
		return glogAdapter{logger: fl.WithFields(fields)}
	}
	return l
}

// buildEngine assembles an engine per the config.
func buildEngine(env *cliEnv) (*engine.Engine, func(), error) {
	opts := []engine.Option{
		engine.WithLogger(env.logger),
		engine.WithJobWorkers(env.cfg.Workers),
		engine.WithJobBatchSize(env.cfg.BatchSize),
	}
	if env.cfg.WorkerID != "" {
		opts = append(opts, engine.WithWorkerID(env.cfg.WorkerID))
	}
	if d, err := env.cfg.pollInterval(); err != nil {
		return nil, nil, err
	} else if d > 0 {
		opts = append(opts, engine.WithJobPollInterval(d))
	}
	if d, err := env.cfg.leaseDuration(); err != nil {
		return nil, nil, err
	} else if d > 0 {
		opts = append(opts, engine.WithJobLeaseDuration(d))
	}

	cleanup := func() {}
	if env.cfg.DBPath != "" {
		db, err := store.OpenSQLite(env.cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, engine.WithStore(db))
		cleanup = func() { db.Close() }
	}
	return engine.New(opts...), cleanup, nil
}

// RunCmd starts the daemon.
type RunCmd struct{}

func (cmd *RunCmd) Run(env *cliEnv) error {
	eng, cleanup, err := buildEngine(env)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, path := range env.cfg.Definitions {
		def, err := LoadDefinition(path)
		if err != nil {
			return err
		}
		deployed, err := eng.Deploy(ctx, def)
		if err != nil {
			return err
		}
		env.logger.Info("deployed definition key=%s version=%d from=%s", deployed.Key, deployed.Version, path)
	}

	if err := eng.Start(ctx); err != nil {
		return err
	}
	env.logger.Info("procd running definitions=%d", len(env.cfg.Definitions))

	<-ctx.Done()
	env.logger.Info("shutting down")
	return eng.Stop(context.Background())
}

// DeployCmd validates definition files: it parses and builds each graph and
// reports what a running daemon would deploy.
type DeployCmd struct {
	Paths []string `arg:"" help:"Definition files to validate." type:"existingfile"`
}

func (cmd *DeployCmd) Run(env *cliEnv) error {
	for _, path := range cmd.Paths {
		def, err := LoadDefinition(path)
		if err != nil {
			return err
		}
		timer := "none"
		if def.TimerStart != nil {
			timer = fmt.Sprintf("%s %q", def.TimerStart.Kind, def.TimerStart.Expression)
		}
		fmt.Printf("%s: key=%s activities=%d timer-start=%s\n", path, def.Key, len(def.Activities), timer)
	}
	return nil
}

// FailedCmd lists exhausted jobs from the durable store.
type FailedCmd struct {
	Limit int `help:"Max jobs listed." default:"50"`
}

func (cmd *FailedCmd) Run(env *cliEnv) error {
	eng, cleanup, err := buildEngine(env)
	if err != nil {
		return err
	}
	defer cleanup()

	jobs, err := eng.FailedJobs(context.Background(), cmd.Limit)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		fmt.Println("no failed jobs")
		return nil
	}
	for _, j := range jobs {
		fmt.Printf("%s type=%s attempts=%d instance=%s error=%s\n",
			j.ID, j.HandlerType, j.Attempts, j.ProcessInstanceID, j.ExceptionMessage)
	}
	return nil
}

// RetryCmd revives a failed job by resetting its retries.
type RetryCmd struct {
	JobID   string `arg:"" help:"Job to revive."`
	Retries int    `help:"Retries to grant." default:"3"`
}

func (cmd *RetryCmd) Run(env *cliEnv) error {
	eng, cleanup, err := buildEngine(env)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := eng.SetJobRetries(context.Background(), cmd.JobID, cmd.Retries); err != nil {
		return err
	}
	fmt.Printf("job %s reset to %d retries\n", cmd.JobID, cmd.Retries)
	return nil
}
