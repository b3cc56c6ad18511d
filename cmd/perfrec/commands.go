package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danhyun/perfrec"
)

// command carries the shared state for CLI subcommands.
type command struct{}

// Record runs a recording. With --api-url it is delegated to a daemon;
// otherwise the recorder is supervised in-process until interrupted.
func (command) Record(flags RecordFlags) error {
	if flags.APIUrl != "" {
		client := NewAPIClient(flags.APIUrl, flags.APITimeout)
		resp, err := client.Record(recordRequest{
			Profile:     flags.Profile,
			Device:      flags.Device,
			Output:      flags.Output,
			TimeLimitMS: flags.TimeLimit.Milliseconds(),
			TargetPID:   flags.TargetPID,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Recording %q on %s, trace at %s\n", resp.Profile, resp.Device, resp.ReportPath)
		return nil
	}

	s := perfrec.NewSession(perfrec.Options{
		ProfileName: flags.Profile,
		DeviceID:    flags.Device,
		OutputPath:  flags.Output,
		Timeout:     flags.TimeLimit,
		TargetPID:   flags.TargetPID,
	})
	if err := s.Start(context.Background()); err != nil {
		return err
	}
	fmt.Printf("Recording %q on %s, trace at %s\n", flags.Profile, flags.Device, s.OriginalReportPath())
	fmt.Println("Press Ctrl+C to stop and archive")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	path, err := s.Stop(false)
	if err != nil {
		return err
	}
	if path == "" {
		fmt.Println("Recording ended with no archive")
		return nil
	}
	fmt.Printf("Archived trace: %s\n", path)
	return nil
}

// Stop ends a recording via the daemon.
func (command) Stop(flags StopFlags) error {
	client := NewAPIClient(flags.APIUrl, flags.APITimeout)
	resp, err := client.Stop(flags.Profile, flags.Force)
	if err != nil {
		return err
	}
	if resp.Forced {
		fmt.Printf("Force-terminated %q, artifacts discarded\n", resp.Profile)
		return nil
	}
	if resp.ArchivePath == "" {
		fmt.Printf("Stopped %q, no archive available\n", resp.Profile)
		return nil
	}
	fmt.Printf("Stopped %q, archived trace: %s\n", resp.Profile, resp.ArchivePath)
	return nil
}

// Status prints session statuses from the daemon.
func (command) Status(flags StatusFlags) error {
	client := NewAPIClient(flags.APIUrl, flags.APITimeout)
	sts, err := client.Statuses(flags.Profile)
	if err != nil {
		return err
	}
	if len(sts) == 0 {
		fmt.Println("No recording sessions")
		return nil
	}
	for _, st := range sts {
		fmt.Printf("%-24s device=%s state=%s running=%t", st.Profile, st.Device, st.State, st.Running)
		if st.ArchivePath != "" {
			fmt.Printf(" archive=%s", st.ArchivePath)
		}
		fmt.Println()
	}
	return nil
}

// Report resolves (creating on demand) the archived trace via the daemon.
func (command) Report(flags ReportFlags) error {
	client := NewAPIClient(flags.APIUrl, flags.APITimeout)
	resp, err := client.Report(flags.Profile)
	if err != nil {
		return err
	}
	fmt.Printf("Archived trace: %s\n", resp.ArchivePath)
	return nil
}

// Serve runs the recording daemon until interrupted.
func (command) Serve(flags ServeFlags, args []string) error {
	configPath := flags.ConfigPath
	if len(args) > 0 {
		configPath = args[0]
	}
	if configPath == "" {
		return fmt.Errorf("config file required for serve command. Use --config=perfrec.toml or provide as argument")
	}

	cfg, err := perfrec.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	log := perfrec.NewLogger(os.Stderr, cfg.LoggerConfig())
	reg := perfrec.New(log)

	if err := perfrec.RegisterMetrics(); err != nil {
		log.Warn("failed to register metrics", "error", err)
	}

	if cfg.History.Enabled {
		sink, err := perfrec.NewHistorySink(cfg.History.DSN)
		if err != nil {
			return fmt.Errorf("failed to open history sink: %w", err)
		}
		reg.SetHistory(sink)
	}

	defaults := perfrec.SessionDefaults(cfg)
	defaults.Logger = log
	server, err := perfrec.NewHTTPServer(cfg.Listen, "", reg, defaults)
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}
	log.Info("perfrec daemon listening", "addr", cfg.Listen)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	if err := reg.StopAll(false); err != nil {
		log.Warn("graceful stop failed, forcing", "error", err)
		_ = reg.StopAll(true)
	}
	_ = reg.Close()
	return server.Close()
}
