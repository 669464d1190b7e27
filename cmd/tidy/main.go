package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"tidy-go/internal/app"
	"tidy-go/internal/config"
	"tidy-go/internal/notify"
	"tidy-go/internal/organizer"
	"tidy-go/internal/rules"
	"tidy-go/internal/tidy"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var verbose bool

// newApp reads the config and creates a TidyApp. The caller must defer app.Close().
// With console set, log lines are mirrored to stderr.
func newApp(console bool) (*app.TidyApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	opts := app.Options{Passphrase: readPassphrase, Verbose: verbose}
	if console {
		opts.Console = os.Stderr
	}
	a, err := app.NewTidyApp(cfg, opts)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// readPassphrase prompts on the terminal for the token identity passphrase.
func readPassphrase() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("token passphrase required but stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, "Token passphrase: ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

var rootCmd = &cobra.Command{
	Use:          "tidy",
	Short:        "Rule-driven folder organizer",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["home_dir"], defaults["base_dir"])
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Home Dir: %s\n", cfg.HomeDir)
		fmt.Printf("Base Dir: %s\n", cfg.BaseDir)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Home Dir:       %s\n", cfg.HomeDir)
		fmt.Printf("Base Dir:       %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:        %s\n", cfg.LogDir)
		fmt.Printf("Database:       %s\n", cfg.Database.Type)
		fmt.Printf("Tokens:         %s\n", cfg.Tokens.Type)
		fmt.Printf("Locations:      %s\n", strings.Join(cfg.Scan.Locations, ", "))
		if len(cfg.Scan.CustomFolders) > 0 {
			fmt.Printf("Custom Folders: %s\n", strings.Join(cfg.Scan.CustomFolders, ", "))
		}
		fmt.Printf("Interval:       %dm\n", cfg.Automation.IntervalMinutes)
		fmt.Printf("Auto Organize:  %v (>= %.2f)\n", cfg.Automation.AutoOrganize, cfg.Automation.AutoOrganizeMinConfidence)
		return nil
	},
}

// scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan folders and suggest destinations",
	RunE: func(cmd *cobra.Command, args []string) error {
		organize, _ := cmd.Flags().GetBool("organize")

		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		summary, err := a.ScanWithTimeout(cmd.Context(), tidy.TriggerManual, organize)
		if err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}

		out := summary.Outcome
		fmt.Printf("Scan #%d: %d file(s), %d matched\n", summary.RunID, len(out.Records), out.Matched())
		for _, key := range out.SortedErrorKeys() {
			fmt.Printf("  failed %s: %v\n", key, out.Errors[key])
		}
		if summary.Organize != nil {
			printOrganize(summary.Organize)
		}
		return nil
	},
}

// organize command
var organizeCmd = &cobra.Command{
	Use:   "organize",
	Short: "Move ready files to their destinations",
	RunE: func(cmd *cobra.Command, args []string) error {
		minConfidence, _ := cmd.Flags().GetFloat64("min-confidence")

		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		if !cmd.Flags().Changed("min-confidence") {
			minConfidence = a.Config().Automation.AutoOrganizeMinConfidence
		}
		res, err := a.Organize(cmd.Context(), minConfidence)
		if err != nil {
			return fmt.Errorf("organize failed: %w", err)
		}
		printOrganize(res)
		return nil
	},
}

func printOrganize(res *organizer.Result) {
	fmt.Printf("Organized %d file(s), %d failed, %d below threshold\n", len(res.Moved), len(res.Failures), res.Skipped)
	for path, err := range res.Failures {
		fmt.Printf("  %s: %v\n", path, err)
	}
}

// run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scheduler and folder watcher until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(true)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		sink := notify.Multi{notify.NewLogSink(a.Logger()), notify.NewWriterSink(os.Stderr)}
		if err := a.Run(ctx, sink); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

// rules command
var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage rules",
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List rules in evaluation order",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		list, err := a.ListRules(cmd.Context())
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println("No rules. Run 'tidy rules seed' to add the defaults.")
			return nil
		}

		for _, r := range rules.Sorted(list) {
			state := "on "
			if !r.Enabled {
				state = "off"
			}
			fmt.Printf("%s  %4d  %-20s  -> %-12s  %s  [%s]\n",
				state,
				r.SortOrder,
				r.Name,
				r.Destination.DisplayName,
				rules.Reason(r),
				r.ID,
			)
		}
		return nil
	},
}

var rulesAddCmd = &cobra.Command{
	Use:   "add NAME CONDITION...",
	Short: "Add a rule, e.g. tidy rules add Invoices ext=pdf name~invoice --to documents",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		to, _ := cmd.Flags().GetString("to")
		op, _ := cmd.Flags().GetString("op")
		excludes, _ := cmd.Flags().GetStringSlice("exclude")
		order, _ := cmd.Flags().GetInt("order")

		in := tidy.RuleInput{
			Name:        args[0],
			Enabled:     true,
			SortOrder:   order,
			Destination: tidy.DestinationRef{Key: to},
		}
		var err error
		if in.Operator, err = tidy.ParseOperator(op); err != nil {
			return err
		}
		if in.Conditions, err = parseConditions(args[1:]); err != nil {
			return err
		}
		if in.Exclusions, err = parseConditions(excludes); err != nil {
			return err
		}

		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		rule, err := a.AddRule(cmd.Context(), in)
		if err != nil {
			return fmt.Errorf("adding rule: %w", err)
		}
		fmt.Printf("Added rule %s (%s)\n", rule.Name, rule.ID)
		return nil
	},
}

func parseConditions(exprs []string) ([]tidy.Condition, error) {
	var out []tidy.Condition
	for _, e := range exprs {
		c, err := rules.ParseCondition(e)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

var rulesRemoveCmd = &cobra.Command{
	Use:   "remove ID",
	Short: "Remove a rule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.RemoveRule(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Removed rule %s\n", args[0])
		return nil
	},
}

func setRuleEnabledCmd(use string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ID",
		Short: strings.ToUpper(use[:1]) + use[1:] + " a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(false)
			if err != nil {
				return err
			}
			defer a.Close()

			return a.SetRuleEnabled(cmd.Context(), args[0], enabled)
		},
	}
}

var rulesSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Add the default rules and grant existing default folders",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		n, granted, err := a.SeedRules(cmd.Context())
		if err != nil {
			return fmt.Errorf("seeding rules: %w", err)
		}
		fmt.Printf("Added %d rule(s), granted %d folder(s)\n", n, granted)
		return nil
	},
}

// folders command
var foldersCmd = &cobra.Command{
	Use:   "folders",
	Short: "Manage destination folders",
}

var foldersGrantCmd = &cobra.Command{
	Use:   "grant KEY PATH",
	Short: "Authorize a destination folder",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")

		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		tok, err := a.GrantFolder(cmd.Context(), args[0], name, args[1])
		if err != nil {
			return fmt.Errorf("granting folder: %w", err)
		}
		fmt.Printf("Granted %s: %s\n", tok.Key, tok.Path)
		return nil
	},
}

var foldersValidateCmd = &cobra.Command{
	Use:   "validate KEY",
	Short: "Check that a granted folder is still inside the home directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		path, err := a.ValidateFolder(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s -> %s\n", args[0], path)
		return nil
	},
}

var foldersRevokeCmd = &cobra.Command{
	Use:   "revoke KEY",
	Short: "Remove a granted folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		return a.RevokeFolder(cmd.Context(), args[0])
	},
}

var foldersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List granted folders",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		tokens, err := a.ListFolders(cmd.Context())
		if err != nil {
			return err
		}
		if len(tokens) == 0 {
			fmt.Println("No folders granted.")
			return nil
		}
		for _, t := range tokens {
			fmt.Printf("%-12s  %-12s  %s\n", t.Key, t.DisplayName, t.Path)
		}
		return nil
	},
}

// records command
var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Review scanned files",
}

var recordsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List records",
	RunE: func(cmd *cobra.Command, args []string) error {
		statusFlag, _ := cmd.Flags().GetString("status")
		var status tidy.Status
		if statusFlag != "" {
			var err error
			if status, err = tidy.ParseStatus(statusFlag); err != nil {
				return err
			}
		}

		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		records, err := a.ListRecords(cmd.Context(), status)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No records.")
			return nil
		}

		for _, r := range records {
			dest := "-"
			if r.Destination != nil {
				dest = r.Destination.DisplayName
			}
			confidence := "    "
			if r.Confidence != nil {
				confidence = fmt.Sprintf("%.2f", *r.Confidence)
			}
			fmt.Printf("%-9s  %s  %-12s  %s\n", r.Status, confidence, dest, r.Path)
		}
		return nil
	},
}

var recordsRejectCmd = &cobra.Command{
	Use:   "reject PATH",
	Short: "Decline the suggested destination for a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		return a.RejectRecord(cmd.Context(), args[0])
	},
}

var recordsSkipCmd = &cobra.Command{
	Use:   "skip PATH",
	Short: "Exclude a file from organizing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		return a.SkipRecord(cmd.Context(), args[0])
	},
}

// move command
var moveCmd = &cobra.Command{
	Use:   "move PATH",
	Short: "Move one file into a granted folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		to, _ := cmd.Flags().GetString("to")

		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		newPath, err := a.Move(cmd.Context(), args[0], to)
		if err != nil {
			return fmt.Errorf("move failed: %w", err)
		}
		fmt.Printf("Moved to %s\n", newPath)
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View scan history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		runs, err := a.History(cmd.Context(), limit)
		if err != nil {
			return err
		}

		if len(runs) == 0 {
			fmt.Println("No scans recorded.")
			return nil
		}

		for _, run := range runs {
			duration := ""
			if run.FinishedAt != nil {
				duration = run.FinishedAt.Sub(run.StartedAt).Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-18s  %s  %-8s  %4d files  %4d matched  %d failed  %s\n",
				run.ID,
				run.Trigger,
				run.StartedAt.Format("2006-01-02 15:04:05"),
				run.Status,
				run.Scanned,
				run.Matched,
				run.FailedFolders,
				duration,
			)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// rules subcommands
	rulesCmd.AddCommand(rulesListCmd)
	rulesCmd.AddCommand(rulesAddCmd)
	rulesAddCmd.Flags().String("to", "", "Destination folder key (see 'tidy folders list')")
	rulesAddCmd.Flags().String("op", "", "How conditions combine: and, or (default and)")
	rulesAddCmd.Flags().StringSlice("exclude", nil, "Conditions that veto a match")
	rulesAddCmd.Flags().Int("order", 100, "Sort order; lower rules win")
	rulesAddCmd.MarkFlagRequired("to")
	rulesCmd.AddCommand(rulesRemoveCmd)
	rulesCmd.AddCommand(setRuleEnabledCmd("enable", true))
	rulesCmd.AddCommand(setRuleEnabledCmd("disable", false))
	rulesCmd.AddCommand(rulesSeedCmd)

	// folders subcommands
	foldersCmd.AddCommand(foldersGrantCmd)
	foldersGrantCmd.Flags().String("name", "", "Display name (defaults to the folder name)")
	foldersCmd.AddCommand(foldersValidateCmd)
	foldersCmd.AddCommand(foldersRevokeCmd)
	foldersCmd.AddCommand(foldersListCmd)

	// records subcommands
	recordsCmd.AddCommand(recordsListCmd)
	recordsListCmd.Flags().String("status", "", "Filter by status: pending, ready, organized, skipped")
	recordsCmd.AddCommand(recordsRejectCmd)
	recordsCmd.AddCommand(recordsSkipCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().Bool("organize", false, "Move ready files above the auto-organize threshold")
	rootCmd.AddCommand(organizeCmd)
	organizeCmd.Flags().Float64("min-confidence", 0, "Confidence floor (default: auto_organize_min_confidence)")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(foldersCmd)
	rootCmd.AddCommand(recordsCmd)
	rootCmd.AddCommand(moveCmd)
	moveCmd.Flags().String("to", "", "Destination folder key")
	moveCmd.MarkFlagRequired("to")
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of scans to show")
}
