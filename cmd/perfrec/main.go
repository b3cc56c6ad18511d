package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/danhyun/perfrec"
)

func main() {
	if err := buildRoot().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command and wires subcommands.
func buildRoot() *cobra.Command {
	cli := command{}

	root := &cobra.Command{
		Use:   "perfrec",
		Short: "Performance recording session manager",
		Long: `Perfrec supervises an external trace recorder: it starts a recording
against a device, confirms the trace bundle appears, and archives it
on graceful stop.

Examples:
  perfrec record --profile="Activity Monitor" --device=UDID --output=/tmp/perf.trace
  perfrec serve --config=perfrec.toml   # Start daemon
  perfrec stop --profile="Activity Monitor"   # Stop via daemon`,
	}

	root.AddCommand(
		createRecordCommand(cli),
		createStopCommand(cli),
		createStatusCommand(cli),
		createReportCommand(cli),
		createServeCommand(cli),
	)
	return root
}

func createRecordCommand(cli command) *cobra.Command {
	flags := &RecordFlags{}
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Start a recording",
		Long: `Start a recording with the given template against a device.
Without --api-url the recorder runs in the foreground until Ctrl+C;
with --api-url the recording is started on a daemon.

Examples:
  perfrec record --profile="Activity Monitor" --device=UDID --output=/tmp/perf.trace
  perfrec record --profile="Time Profiler" --device=UDID --output=/tmp/p.trace --attach=1234
  perfrec record --profile="Activity Monitor" --api-url=http://remote:8080`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Record(*flags)
		},
	}

	cmd.Flags().StringVar(&flags.Profile, "profile", "", "recording template name (required)")
	cmd.Flags().StringVar(&flags.Device, "device", "", "device identifier")
	cmd.Flags().StringVar(&flags.Output, "output", "", "trace bundle output path")
	cmd.Flags().DurationVar(&flags.TimeLimit, "time-limit", perfrec.DefaultTimeout, "recording time limit")
	cmd.Flags().IntVar(&flags.TargetPID, "attach", 0, "record a single process by PID (0 records all)")
	cmd.Flags().StringVar(&flags.APIUrl, "api-url", "", "remote daemon URL (e.g. http://host:8080)")
	cmd.Flags().DurationVar(&flags.APITimeout, "api-timeout", 60*time.Second, "request timeout")

	if err := cmd.MarkFlagRequired("profile"); err != nil {
		panic(err)
	}
	return cmd
}

func createStopCommand(cli command) *cobra.Command {
	flags := &StopFlags{}
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop a recording",
		Long: `Stop a recording running on a daemon. A graceful stop archives the
trace bundle; --force discards all artifacts.

Examples:
  perfrec stop --profile="Activity Monitor"
  perfrec stop --profile="Activity Monitor" --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Stop(*flags)
		},
	}

	cmd.Flags().StringVar(&flags.Profile, "profile", "", "recording template name (required)")
	cmd.Flags().BoolVar(&flags.Force, "force", false, "kill the recorder and discard artifacts")
	cmd.Flags().StringVar(&flags.APIUrl, "api-url", "", "remote daemon URL (e.g. http://host:8080)")
	cmd.Flags().DurationVar(&flags.APITimeout, "api-timeout", 60*time.Second, "request timeout")

	if err := cmd.MarkFlagRequired("profile"); err != nil {
		panic(err)
	}
	return cmd
}

func createStatusCommand(cli command) *cobra.Command {
	flags := &StatusFlags{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recording status",
		Long: `Show the status of recordings on a daemon.

Examples:
  perfrec status                               # all sessions
  perfrec status --profile="Activity Monitor"  # one session`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Status(*flags)
		},
	}

	cmd.Flags().StringVar(&flags.Profile, "profile", "", "recording template name (optional)")
	cmd.Flags().StringVar(&flags.APIUrl, "api-url", "", "remote daemon URL (e.g. http://host:8080)")
	cmd.Flags().DurationVar(&flags.APITimeout, "api-timeout", 30*time.Second, "request timeout")
	return cmd
}

func createReportCommand(cli command) *cobra.Command {
	flags := &ReportFlags{}
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Fetch the archived trace path",
		Long: `Resolve the archived trace for a recording, compressing the trace
bundle on demand if it has not been archived yet.

Examples:
  perfrec report --profile="Activity Monitor"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Report(*flags)
		},
	}

	cmd.Flags().StringVar(&flags.Profile, "profile", "", "recording template name (required)")
	cmd.Flags().StringVar(&flags.APIUrl, "api-url", "", "remote daemon URL (e.g. http://host:8080)")
	cmd.Flags().DurationVar(&flags.APITimeout, "api-timeout", 60*time.Second, "request timeout")

	if err := cmd.MarkFlagRequired("profile"); err != nil {
		panic(err)
	}
	return cmd
}

func createServeCommand(cli command) *cobra.Command {
	flags := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve [perfrec.toml]",
		Short: "Start the perfrec daemon",
		Long: `Start the perfrec daemon serving the recording API.
All configuration is loaded from a TOML file.

Examples:
  perfrec serve --config=perfrec.toml
  perfrec serve perfrec.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Serve(*flags, args)
		},
	}

	cmd.Flags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file")
	return cmd
}
