// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package app runs long lived runtimes behind a cobra command which
// handles configuration and OS interrupts.
package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/z5labs/tether/config"
	"github.com/z5labs/tether/internal/try"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// Runtime represents the entry point for user specific code.
type Runtime interface {
	Run(context.Context) error
}

// RuntimeFunc is a func variant of the [Runtime] interface.
type RuntimeFunc func(context.Context) error

// Run implements the [Runtime] interface.
func (f RuntimeFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// Lifecycle provides the ability to hook into certain points of [App.Run].
type Lifecycle struct {
	preRunHooks  []func(context.Context) error
	postRunHooks []func(context.Context) error
}

// PreRun registers hooks to be called after every runtime is built
// and before any Runtime.Run is called.
func (l *Lifecycle) PreRun(hooks ...func(context.Context) error) {
	l.preRunHooks = append(l.preRunHooks, hooks...)
}

// PostRun registers hooks to be called after every Runtime.Run has
// returned, regardless of whether it returned an error or not.
func (l *Lifecycle) PostRun(hooks ...func(context.Context) error) {
	l.postRunHooks = append(l.postRunHooks, hooks...)
}

type contextKey string

var (
	configContextKey    = contextKey("configContextKey")
	lifecycleContextKey = contextKey("lifecycleContextKey")
)

// ConfigFromContext extracts the merged config from the context passed
// to a [RuntimeBuilder].
func ConfigFromContext(ctx context.Context) *config.Manager {
	return ctx.Value(configContextKey).(*config.Manager)
}

// LifecycleFromContext extracts the *Lifecycle from the context passed
// to a [RuntimeBuilder].
func LifecycleFromContext(ctx context.Context) *Lifecycle {
	return ctx.Value(lifecycleContextKey).(*Lifecycle)
}

// RuntimeBuilder represents anything which can initialize a Runtime.
type RuntimeBuilder interface {
	Build(context.Context) (Runtime, error)
}

// RuntimeBuilderFunc is a functional implementation of
// the RuntimeBuilder interface.
type RuntimeBuilderFunc func(context.Context) (Runtime, error)

// Build implements the RuntimeBuilder interface.
func (f RuntimeBuilderFunc) Build(ctx context.Context) (Runtime, error) {
	return f(ctx)
}

// Option are used to configure an App.
type Option func(*App)

// Name configures the name of the application.
func Name(name string) Option {
	return func(a *App) {
		a.name = name
	}
}

// Defaults registers the config values every other source overrides.
func Defaults(m config.Map) Option {
	return func(a *App) {
		a.defaults = m
	}
}

// EnvPrefix applies environment variables named PREFIX_* on top of the
// config file. See [config.EnvPrefix].
func EnvPrefix(prefix string) Option {
	return func(a *App) {
		a.envPrefix = prefix
	}
}

// WithFs sets the filesystem the --config file is read from.
//
// Default is the OS filesystem.
func WithFs(fs afero.Fs) Option {
	return func(a *App) {
		a.fs = fs
	}
}

// WithRuntimeBuilder registers the given RuntimeBuilder with the App.
func WithRuntimeBuilder(rb RuntimeBuilder) Option {
	return func(a *App) {
		a.rbs = append(a.rbs, rb)
	}
}

// WithRuntimeBuilderFunc registers the given function as a RuntimeBuilder.
func WithRuntimeBuilderFunc(f func(context.Context) (Runtime, error)) Option {
	return func(a *App) {
		a.rbs = append(a.rbs, RuntimeBuilderFunc(f))
	}
}

// Hooks allows you to register multiple lifecycle hooks.
func Hooks(fs ...func(*Lifecycle)) Option {
	return func(a *App) {
		for _, f := range fs {
			f(&a.life)
		}
	}
}

// App handles the lower level things of running a service:
//   - merging defaults, the --config file and the environment
//   - calling lifecycle hooks at the appropriate times
//   - running every Runtime and propagating OS interrupts
//     via context.Context cancellation
type App struct {
	name      string
	defaults  config.Map
	envPrefix string
	fs        afero.Fs
	rbs       []RuntimeBuilder
	life      Lifecycle
}

// New returns a fully initialized App.
func New(opts ...Option) *App {
	var name string
	if len(os.Args) > 0 {
		name = os.Args[0]
	}
	app := &App{
		name: name,
		fs:   afero.NewOsFs(),
	}
	for _, opt := range opts {
		opt(app)
	}
	return app
}

// Run executes the application with the given command line arguments.
// It terminates the application once an interrupt is received.
func (app *App) Run(args ...string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return app.RunContext(ctx, args...)
}

// RunContext is Run with the interrupt handling left to the caller.
func (app *App) RunContext(ctx context.Context, args ...string) error {
	if args == nil {
		args = []string{}
	}

	cmd := buildCmd(app)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

var errNilRuntime = errors.New("app: RuntimeBuilder returned a nil Runtime")

func buildCmd(app *App) *cobra.Command {
	var (
		cfgPath string
		cfg     *config.Manager
		rs      []Runtime
	)

	cmd := &cobra.Command{
		Use:           app.name,
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) (err error) {
			defer try.Recover(&err)

			cfg, err = app.readConfig(cfgPath)
			if err != nil {
				return err
			}

			ctx := context.WithValue(cmd.Context(), configContextKey, cfg)
			ctx = context.WithValue(ctx, lifecycleContextKey, &app.life)

			for _, rb := range app.rbs {
				r, err := rb.Build(ctx)
				if err != nil {
					return err
				}
				if r == nil {
					return errNilRuntime
				}
				rs = append(rs, r)
			}

			var errs []error
			for _, f := range app.life.preRunHooks {
				errs = append(errs, f(ctx))
			}
			return errors.Join(errs...)
		},
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			defer func() {
				err = errors.Join(err, app.postRun(cmd.Context(), cfg))
			}()
			defer try.Recover(&err)

			if len(rs) == 1 {
				return rs[0].Run(cmd.Context())
			}

			g, gctx := errgroup.WithContext(cmd.Context())
			for _, rt := range rs {
				rt := rt
				g.Go(func() (e error) {
					defer try.Recover(&e)
					return rt.Run(gctx)
				})
			}
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "", "path to a YAML or .json config file, rendered as a text/template with an env function")
	return cmd
}

// postRun calls every PostRun hook, even when a runtime failed.
func (app *App) postRun(ctx context.Context, cfg *config.Manager) error {
	ctx = context.WithValue(ctx, configContextKey, cfg)
	ctx = context.WithValue(ctx, lifecycleContextKey, &app.life)

	var errs []error
	for _, f := range app.life.postRunHooks {
		errs = append(errs, f(ctx))
	}
	return errors.Join(errs...)
}

func (app *App) readConfig(path string) (*config.Manager, error) {
	var srcs []config.Source
	if app.defaults != nil {
		srcs = append(srcs, app.defaults)
	}
	if path != "" {
		srcs = append(srcs, fileSource(app.fs, path))
	}
	if app.envPrefix != "" {
		srcs = append(srcs, config.FromEnv(config.EnvPrefix(app.envPrefix)))
	}
	return config.Read(srcs...)
}

// fileSource picks the decoder by file extension. Anything that is not
// .json is read as YAML.
func fileSource(fs afero.Fs, path string) config.Source {
	r := config.RenderTextTemplate(
		config.NewFileReader(fs, path),
		config.TemplateFunc("env", os.Getenv),
	)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return config.FromJson(r)
	}
	return config.FromYaml(r)
}
