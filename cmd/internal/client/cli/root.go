// Package cli implements the noteboxctl commands.
//
// Every command runs against one wired session: the credential store under the data
// path, a session client for the configured server, and the auth controller restored
// from the store.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/cobra"

	"notebox/cmd/internal/client/apiclient"
	"notebox/cmd/internal/client/authstate"
	"notebox/cmd/internal/client/credstore"
	"notebox/cmd/internal/client/sessionclient"
)

var errNotLoggedIn = errors.New("not logged in; run `noteboxctl login` first")

// Options carries the process surface so tests can drive the commands.
type Options struct {
	In           io.Reader
	Out          io.Writer
	Err          io.Writer
	ReadPassword func() ([]byte, error)
	Lookuper     envconfig.Lookuper
}

func (o Options) withDefaults() Options {
	if o.In == nil {
		o.In = os.Stdin
	}
	if o.Out == nil {
		o.Out = os.Stdout
	}
	if o.Err == nil {
		o.Err = os.Stderr
	}
	if o.Lookuper == nil {
		o.Lookuper = envconfig.OsLookuper()
	}
	return o
}

type runtime struct {
	opts Options

	serverURL string
	dataPath  string

	log    *slog.Logger
	store  *credstore.Store
	api    *apiclient.API
	ctl    *authstate.Controller
	prompt *Prompter
}

// Run executes noteboxctl with args and releases the session store afterwards.
func Run(ctx context.Context, opts Options, args []string) error {
	rt := &runtime{opts: opts.withDefaults()}
	defer rt.close()

	cmd := rt.rootCommand()
	cmd.SetArgs(args)
	cmd.SetIn(rt.opts.In)
	cmd.SetOut(rt.opts.Out)
	cmd.SetErr(rt.opts.Err)
	return describe(cmd.ExecuteContext(ctx))
}

func (rt *runtime) rootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "noteboxctl",
		Short:         "Command-line client for the notebox API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return rt.open(cmd.Context())
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringVar(&rt.serverURL, "server", "", "API base URL (overrides NOTEBOXCTL_SERVER_URL)")
	cmd.PersistentFlags().StringVar(&rt.dataPath, "data", "", "session database path (overrides NOTEBOXCTL_DATA_PATH)")

	cmd.AddCommand(
		rt.registerCommand(),
		rt.loginCommand(),
		rt.logoutCommand(),
		rt.statusCommand(),
		rt.refreshCommand(),
		rt.profileCommand(),
		rt.passwdCommand(),
		rt.foldersCommand(),
	)
	return cmd
}

func (rt *runtime) open(ctx context.Context) error {
	cfg, err := LoadConfig(ctx, rt.opts.Lookuper)
	if err != nil {
		return err
	}
	if rt.serverURL != "" {
		cfg.ServerURL = rt.serverURL
	}
	if rt.dataPath != "" {
		cfg.DataPath = rt.dataPath
	}
	path, err := cfg.dataPath()
	if err != nil {
		return err
	}

	rt.log = newLogger(rt.opts.Err, cfg.LogLevel)
	rt.store, err = credstore.Open(ctx, path, rt.log)
	if err != nil {
		return err
	}

	sc, err := sessionclient.New(cfg.ServerURL, rt.store,
		sessionclient.WithLogger(rt.log),
		sessionclient.WithTimeout(cfg.Timeout),
	)
	if err != nil {
		return err
	}
	rt.api = apiclient.New(sc)
	rt.ctl = authstate.New(rt.api, rt.store, rt.log)
	rt.ctl.Init(ctx)

	rt.prompt = NewPrompter(rt.opts.In, rt.opts.Out, rt.opts.ReadPassword)
	return nil
}

func (rt *runtime) close() {
	if rt.store == nil {
		return
	}
	if err := rt.store.Close(); err != nil && rt.log != nil {
		rt.log.Warn("credstore.close.fail", "err", err)
	}
	rt.store = nil
}

func (rt *runtime) requireSession() error {
	if !rt.ctl.Snapshot().IsAuthenticated {
		return errNotLoggedIn
	}
	return nil
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// describe turns API failures into messages meant for a person at a terminal.
func describe(err error) error {
	e, ok := sessionclient.AsError(err)
	if !ok {
		return err
	}
	switch {
	case e.Refresh != nil:
		return fmt.Errorf("session expired; run `noteboxctl login` again (%s)", e.Message)
	case e.Kind == sessionclient.KindNetwork:
		return fmt.Errorf("cannot reach server: %w", e.Err)
	case e.Code != "":
		return fmt.Errorf("%s: %s", e.Code, e.Message)
	default:
		return fmt.Errorf("%s error (%d): %s", e.Kind, e.Status, e.Message)
	}
}
