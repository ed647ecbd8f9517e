package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kode4food/timelock"
)

// session is an Engine opened for the lifetime of one command
type session struct {
	engine    *timelock.Engine
	store     *timelock.Store
	logger    *zap.Logger
	formatter *OutputFormatter
}

func openSession(
	ctx context.Context, opts *RootOptions, cmd *cobra.Command,
) (*session, error) {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	logger := newLogger(opts.Verbose, cmd.ErrOrStderr())

	backend, err := openBackend(ctx, opts)
	if err != nil {
		_ = formatter.Error(ErrCodeBackend, err.Error())
		return nil, WrapExitError(ExitCommandError, ErrCodeBackend, err)
	}
	formatter.VerboseLog("Opened %s backend, book %q", opts.Backend, opts.Book)

	var clock timelock.Clock = timelock.SystemClock{}
	if opts.Now != 0 {
		clock = timelock.NewManualClock(time.Unix(opts.Now, 0))
	}

	cfg := timelock.DefaultConfig()
	store := timelock.NewStore(backend, cfg, timelock.WithLogger(logger))
	engine := timelock.NewEngine(store, cfg,
		timelock.WithLogger(logger),
		timelock.WithClock(clock),
		timelock.WithBook(opts.Book),
	)
	return &session{
		engine:    engine,
		store:     store,
		logger:    logger,
		formatter: formatter,
	}, nil
}

func (s *session) Close() error {
	err := s.store.Close()
	_ = s.logger.Sync()
	return err
}

// caller returns the acting participant, rejecting commands run without one
func (s *session) caller(opts *RootOptions) (timelock.Participant, error) {
	if opts.Caller == "" {
		_ = s.formatter.Error(ErrCodeArguments, "caller is required (--caller or TIMELOCK_CALLER)")
		return "", NewExitError(ExitCommandError, "caller is required")
	}
	return timelock.Participant(opts.Caller), nil
}

func openBackend(ctx context.Context, opts *RootOptions) (timelock.Backend, error) {
	switch opts.Backend {
	case "bolt":
		cfg := timelock.DefaultBoltConfig()
		cfg.Path = opts.Path
		return timelock.OpenBoltBackend(cfg)
	case "redis":
		cfg := timelock.DefaultRedisConfig()
		cfg.Addr = opts.RedisAddr
		return timelock.NewRedisBackend(ctx, cfg)
	case "postgres":
		cfg := timelock.DefaultPostgresConfig()
		cfg.URL = opts.PostgresURL
		return timelock.NewPostgresBackend(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown backend %q", opts.Backend)
	}
}

// newLogger writes warnings to w, or everything down to debug when verbose
func newLogger(verbose bool, w io.Writer) *zap.Logger {
	level := zapcore.WarnLevel
	encCfg := zap.NewProductionEncoderConfig()
	if verbose {
		level = zapcore.DebugLevel
		encCfg = zap.NewDevelopmentEncoderConfig()
	}
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.AddSync(w),
		level,
	)
	return zap.New(core)
}

// withSession opens a session, runs fn, and closes the session
func withSession(
	opts *RootOptions, cmd *cobra.Command, fn func(*session) error,
) error {
	s, err := openSession(cmd.Context(), opts, cmd)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	return fn(s)
}
