package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"attendance_service/internal/attendance"
	"attendance_service/internal/config"
	"attendance_service/internal/roster"
)

// errDiverged makes verify exit with status 2.
var errDiverged = errors.New("attendance logs diverged")

type options struct {
	configPath string
	dataDir    string
	rosterPath string
}

func (o *options) load() (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return cfg, err
	}
	if o.dataDir != "" {
		cfg.DataDir = o.dataDir
	}
	if o.rosterPath != "" {
		cfg.RosterPath = o.rosterPath
	}
	return cfg, nil
}

func (o *options) openRoster() (*roster.Store, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, err
	}
	return roster.Open(cfg.RosterPath)
}

func (o *options) openLog() (*attendance.Log, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, err
	}
	return attendance.NewLog(cfg.DataDir)
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "attendctl",
		Short:         "Inspect the attendance roster and logs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(out)
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file")
	rootCmd.PersistentFlags().StringVar(&opts.dataDir, "data", "", "attendance records directory (overrides config)")
	rootCmd.PersistentFlags().StringVar(&opts.rosterPath, "roster", "", "roster file (overrides config)")

	usersCmd := &cobra.Command{
		Use:   "users",
		Short: "Manage registered users",
	}
	usersCmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List registered users",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := opts.openRoster()
				if err != nil {
					return err
				}
				users := store.List()
				if len(users) == 0 {
					fmt.Fprintln(out, "No users registered.")
					return nil
				}
				for _, u := range users {
					fmt.Fprintf(out, "ID: %s | Name: %s | QR: %s\n", u.ID, u.DisplayName, u.ScanToken)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "register <id> <name...>",
			Short: "Register a new user",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := opts.openRoster()
				if err != nil {
					return err
				}
				p, err := store.Register(strings.TrimSpace(args[0]), strings.Join(args[1:], " "))
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "User %s registered successfully! QR code data: %s\n", p.DisplayName, p.ID)
				return nil
			},
		},
	)

	recordsCmd := &cobra.Command{
		Use:   "records [event]",
		Short: "Print attendance records for one event or all events",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := opts.openLog()
			if err != nil {
				return err
			}
			var content string
			if len(args) == 1 {
				content, err = log.ReadEvent(args[0])
			} else {
				content, err = log.ReadAll()
			}
			if errors.Is(err, attendance.ErrNoRecords) {
				fmt.Fprintln(out, "No attendance records found.")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprint(out, content)
			return nil
		},
	}

	verifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Check that the per-event logs and the aggregate log agree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := opts.openLog()
			if err != nil {
				return err
			}
			report := log.Reconcile()
			if !report.OK {
				fmt.Fprintf(out, "FAIL: %v\n", report.Errors)
				return errDiverged
			}
			events := make([]string, 0, len(report.PerEvent))
			for name, n := range report.PerEvent {
				events = append(events, fmt.Sprintf("%s=%d", name, n))
			}
			sort.Strings(events)
			fmt.Fprintf(out, "OK: %d records %v\n", report.Total, events)
			return nil
		},
	}

	rootCmd.AddCommand(usersCmd, recordsCmd, verifyCmd)
	return rootCmd
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		if errors.Is(err, errDiverged) {
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
