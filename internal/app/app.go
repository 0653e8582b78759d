// Package app is the mcstatus command line.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"os"
	"os/signal"
	"runtime"
	"slices"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/keyboard-slayer/mcstatus/internal/address"
	"github.com/keyboard-slayer/mcstatus/internal/config"
	"github.com/keyboard-slayer/mcstatus/internal/mcerrors"
	"github.com/keyboard-slayer/mcstatus/internal/minecraft"
	"github.com/keyboard-slayer/mcstatus/internal/output"
	"github.com/keyboard-slayer/mcstatus/internal/picker"
	"github.com/keyboard-slayer/mcstatus/internal/progress"
	"github.com/keyboard-slayer/mcstatus/internal/servers"
)

const (
	ExitOK          = 0
	ExitError       = 1
	ExitConfig      = 2
	ExitConnection  = 3
	ExitTimeout     = 4
	ExitProtocol    = 5
	ExitInterrupted = 130
)

var versionString = "dev"

func SetVersionBuildCommitString(version, commit, buildDate string) {
	if version == "" {
		return
	}

	versionString = version
	if commit != "" {
		versionString += " (" + commit
		if buildDate != "" {
			versionString += ", " + buildDate
		}
		versionString += ")"
	}
}

type options struct {
	flags      config.Config
	json       bool
	noSRV      bool
	noPing     bool
	verbose    bool
	configPath string
	iconPath   string

	// started is set once cobra is done validating the command line.
	started bool
}

// Execute runs the command line and exits the process.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// Run executes the command with args and returns the exit code.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd, opts := newRootCmd(stdout, stderr)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}

	if !opts.started && !errors.Is(err, errUsage) {
		err = fmt.Errorf("%w: %w", errUsage, err)
	}

	// Giving up on the picker is not worth a message.
	if !errors.Is(err, context.Canceled) && !errors.Is(err, picker.ErrCancelled) {
		output.RenderError(stderr, err)
	}

	return ExitCode(err)
}

// ExitCode maps an error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, context.Canceled), errors.Is(err, picker.ErrCancelled):
		return ExitInterrupted
	case errors.Is(err, mcerrors.ErrTimeout):
		return ExitTimeout
	case errors.Is(err, mcerrors.ErrConnection):
		return ExitConnection
	case errors.Is(err, mcerrors.ErrProtocol):
		return ExitProtocol
	case errors.Is(err, mcerrors.ErrAddress), errors.Is(err, mcerrors.ErrConfig), errors.Is(err, errUsage):
		return ExitConfig
	default:
		return ExitError
	}
}

var errUsage = errors.New("usage error")

func newRootCmd(stdout, stderr io.Writer) (*cobra.Command, *options) {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "mcstatus",
		Short: "Query the status of a Minecraft server",
		Long: "mcstatus asks a Minecraft server how many players are online without starting the game.\n" +
			"Without --server it offers the servers saved in your servers.dat.",
		Version:       versionString,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.started = true
			return run(cmd.Context(), opts, cmd, stdout, stderr)
		},
	}

	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w: %w", errUsage, err)
	})

	f := cmd.Flags()
	f.StringVarP(&opts.flags.Instance, "instance", "i", "", "path to the folder of your minecraft instance [default: the standard .minecraft folder]")
	f.StringVarP(&opts.flags.Server, "server", "s", "", "IP/domain of the minecraft server to query")
	f.StringVarP(&opts.flags.ServersFile, "servers-file", "f", "", "path to the servers.dat file you want to choose a server from")
	f.Float64VarP(&opts.flags.Timeout, "timeout", "t", 0, "timeout in seconds (default 2)")
	f.BoolVar(&opts.json, "json", false, "print the status as JSON")
	f.BoolVar(&opts.noSRV, "no-srv", false, "do not look up _minecraft._tcp SRV records")
	f.BoolVar(&opts.noPing, "no-ping", false, "do not measure latency")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "log every protocol step")
	f.StringVar(&opts.iconPath, "icon", "", "save the server icon as a PNG file")
	f.StringVar(&opts.configPath, "config", "", "path to the config file (default "+config.DefaultPath()+")")
	cmd.MarkFlagsMutuallyExclusive("instance", "server", "servers-file")

	return cmd, opts
}

func setupLogging(stderr io.Writer, verbose bool) {
	level := log.WarnLevel
	if verbose {
		level = log.DebugLevel
	}

	handler := log.NewWithOptions(stderr, log.Options{
		ReportCaller: verbose,
		Level:        level,
		Prefix:       "mcstatus",
	})

	slog.SetDefault(slog.New(handler))
}

func (o *options) resolveConfig(cmd *cobra.Command) (config.Config, error) {
	flags := o.flags
	if o.json {
		flags.Format = config.FormatJSON
	}
	if o.noSRV {
		no := false
		flags.SRV = &no
	}
	if o.noPing {
		no := false
		flags.Ping = &no
	}
	if cmd.Flags().Changed("timeout") && (!(flags.Timeout > 0) || math.IsInf(flags.Timeout, 0)) {
		return config.Config{}, fmt.Errorf("%w: timeout must be a positive number of seconds, got %g", mcerrors.ErrConfig, flags.Timeout)
	}

	path, explicit := o.configPath, o.configPath != ""
	if !explicit {
		path = config.DefaultPath()
	}

	file, err := config.Load(path, explicit)
	if err != nil {
		return config.Config{}, err
	}

	return config.Resolve(flags, file)
}

func run(ctx context.Context, opts *options, cmd *cobra.Command, stdout, stderr io.Writer) error {
	setupLogging(stderr, opts.verbose)

	cfg, err := opts.resolveConfig(cmd)
	if err != nil {
		return err
	}
	slog.Debug("configuration", "timeout", cfg.TimeoutDuration(), "srv", cfg.UseSRV(), "ping", cfg.UsePing(), "format", cfg.Format)

	queryOpts := []minecraft.Option{minecraft.WithTimeout(cfg.TimeoutDuration())}
	if cfg.UsePing() {
		queryOpts = append(queryOpts, minecraft.WithPing())
	}

	resolve := func(ctx context.Context, endpoint address.Endpoint) address.Endpoint {
		if cfg.UseSRV() {
			return address.Resolve(ctx, net.DefaultResolver, endpoint)
		}
		return endpoint
	}

	probe := func(ctx context.Context, entry servers.Entry) (*minecraft.Status, error) {
		logger := minecraft.WithLogger(slog.Default().With("entry", entry.Name))
		return minecraft.Query(ctx, resolve(ctx, entry.Endpoint), append(slices.Clip(queryOpts), logger)...)
	}

	entry, err := chooseServer(ctx, cfg, stderr, probe)
	if err != nil {
		return err
	}

	endpoint := resolve(ctx, entry.Endpoint)

	var status *minecraft.Status
	if cfg.Format == config.FormatText && progress.Enabled(stderr) {
		status, err = progress.Run(ctx, stderr, func(ctx context.Context, report func(minecraft.Step)) (*minecraft.Status, error) {
			return minecraft.Query(ctx, endpoint, append(slices.Clip(queryOpts), minecraft.WithProgress(report))...)
		})
	} else {
		status, err = minecraft.Query(ctx, endpoint, queryOpts...)
	}
	if err != nil {
		return err
	}

	if opts.iconPath != "" {
		if err := saveIcon(opts.iconPath, status); err != nil {
			return err
		}
	}

	if cfg.Format == config.FormatJSON {
		out, err := output.ToJSON(endpoint, status)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, out)
		return nil
	}

	output.RenderText(stdout, endpoint, status)
	return nil
}

// saveIcon writes the server icon to path. A server without one is only
// worth a warning.
func saveIcon(path string, status *minecraft.Status) error {
	if status.Favicon == "" {
		slog.Warn("server has no icon", "path", path)
		return nil
	}

	icon, err := status.Icon()
	if err != nil {
		return fmt.Errorf("%w: %w", mcerrors.ErrProtocol, err)
	}

	if err := os.WriteFile(path, icon, 0o644); err != nil {
		return fmt.Errorf("saving icon: %w", err)
	}

	return nil
}

func chooseServer(ctx context.Context, cfg config.Config, stderr io.Writer, probe picker.Prober) (servers.Entry, error) {
	if cfg.Server != "" {
		entries, err := servers.FromAddress(cfg.Server)
		if err != nil {
			return servers.Entry{}, err
		}
		return entries[0], nil
	}

	path := cfg.ServersFile
	if path == "" {
		instance := cfg.Instance
		if instance == "" {
			dir, err := servers.InstanceDir(runtime.GOOS, servers.CurrentEnv())
			if err != nil {
				return servers.Entry{}, err
			}
			instance = dir
		}
		path = servers.DefaultFile(instance)
	}

	entries, err := servers.Load(path)
	if err != nil {
		if servers.IsMissing(err) && cfg.ServersFile == "" {
			return servers.Entry{}, fmt.Errorf("%w (check that the .minecraft folder exists or pass it with --instance)", err)
		}
		return servers.Entry{}, err
	}

	return picker.Run(ctx, stderr, entries, probe)
}
