package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/robbinhan/rssh/internal/bridge"
	"github.com/robbinhan/rssh/internal/config"
	"github.com/robbinhan/rssh/internal/helper"
	"github.com/robbinhan/rssh/internal/record"
	"github.com/robbinhan/rssh/internal/term"
	"github.com/robbinhan/rssh/internal/trace"
	"github.com/robbinhan/rssh/internal/transport"
)

var (
	flagConfig  string
	flagMode    string
	flagCommand string
	flagTrace   bool
	flagRecord  bool
)

func main() {
	root := &cobra.Command{
		Use:           "rssh",
		Short:         "SSH client with transparent rz/sz file transfer",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", config.DefaultPath(), "path to config file")

	connectCmd := &cobra.Command{
		Use:   "connect [server]",
		Short: "Open an interactive session to a configured server",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runConnect,
	}
	connectCmd.Flags().StringVar(&flagMode, "mode", "", "connection backend: library, async, exec or debug")
	connectCmd.Flags().StringVarP(&flagCommand, "command", "c", "", "run a single command instead of a shell")
	connectCmd.Flags().BoolVar(&flagTrace, "trace", false, "enable the diagnostic trace from the start")
	connectCmd.Flags().BoolVar(&flagRecord, "record", false, "record the session to an asciinema cast file")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List configured servers",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}

	root.AddCommand(connectCmd, listCmd)

	if err := root.Execute(); err != nil {
		log.Fatalf("[BOOT] %v", err)
	}
}

func runList(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	if len(cfg.Servers) == 0 {
		fmt.Println("no servers configured")
		return nil
	}
	for _, p := range cfg.Servers {
		port := p.Port
		if port == 0 {
			port = 22
		}
		fmt.Printf("%-20s %s@%s:%d\n", p.Name, p.User, p.Host, port)
	}
	return nil
}

func runConnect(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}

	name := ""
	if len(args) == 1 {
		name = args[0]
	}
	target, err := cfg.Resolve(name)
	if err != nil {
		return err
	}

	mode := flagMode
	if mode == "" {
		mode = cfg.Session.Backend
	}
	backend, err := transport.ParseBackend(mode)
	if err != nil {
		return err
	}

	// Delegated mode: hand the session to the system ssh client. On
	// success this call never returns.
	if backend == transport.BackendExec {
		if flagCommand != "" {
			return fmt.Errorf("--command is not supported with the exec backend")
		}
		log.Printf("[BOOT] delegating to system ssh for %s", target.Addr())
		return transport.ExecReplace(target)
	}

	sink, err := buildSink(cfg, backend)
	if err != nil {
		return err
	}
	defer sink.Close()

	rec, err := buildRecorder(cfg)
	if err != nil {
		return err
	}
	defer rec.Close()

	opts := bridge.Options{
		Target:       target,
		Backend:      backend,
		Command:      flagCommand,
		TermName:     cfg.Session.TermName,
		PollInterval: pollInterval(cfg),
		Helper:       helper.NewLauncher(os.Stdin, os.Stdout, helperOptions(cfg)...),
		Trace:        sink,
		Recorder:     rec,
	}

	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	exitCode, err := bridge.New(opts).Run(ctx)
	if err != nil {
		return err
	}
	if exitCode != 0 {
		os.Exit(exitCode)
	}
	return nil
}

// buildSink opens the trace log. The debug backend and the --trace flag
// both enable it from the first byte; otherwise it starts dark and can
// be toggled with ESC d during the session.
func buildSink(cfg *config.Config, backend transport.Backend) (*trace.Sink, error) {
	enabled := flagTrace || cfg.Trace.Enabled || backend == transport.BackendDebug
	path := config.ExpandTilde(cfg.Trace.Path)
	if path == "" {
		return trace.Nop(), nil
	}
	return trace.New(path, enabled)
}

func buildRecorder(cfg *config.Config) (record.Recorder, error) {
	if !flagRecord && !cfg.Record.Enabled {
		return record.NopRecorder{}, nil
	}
	dir := config.ExpandTilde(cfg.Record.Dir)
	if dir == "" {
		dir = "."
	}
	w, h := term.Size(int(os.Stdin.Fd()))
	rec, err := record.NewCast(dir, "rssh session", w, h)
	if err != nil {
		return nil, err
	}
	log.Printf("[RECORD] writing %s", rec.Path())
	return rec, nil
}

func pollInterval(cfg *config.Config) time.Duration {
	if cfg.Session.PollIntervalMs <= 0 {
		return 0
	}
	return time.Duration(cfg.Session.PollIntervalMs) * time.Millisecond
}

func helperOptions(cfg *config.Config) []helper.Option {
	var opts []helper.Option
	if len(cfg.Helper.UploadCmd) > 0 {
		opts = append(opts, helper.WithUploadCommand(cfg.Helper.UploadCmd))
	}
	if len(cfg.Helper.DownloadCmd) > 0 {
		opts = append(opts, helper.WithDownloadCommand(cfg.Helper.DownloadCmd))
	}
	return opts
}
