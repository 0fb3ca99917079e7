package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"putplace/internal/app"
	"putplace/internal/config"
	"putplace/internal/pp"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates a PPApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "Scan", "Publish").
func newApp(ctx context.Context, operation string) (*app.PPApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewPPApp(ctx, cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

var rootCmd = &cobra.Command{
	Use:   "pp",
	Short: "Content-addressed file catalog",
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

		// Generate a new host ID
		hostID := uuid.New().String()

		cfg := config.NewConfig(hostID, defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Host ID: %s\n", hostID)
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
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
		fmt.Printf("Host ID:  %s\n", cfg.HostID)
		fmt.Printf("Base Dir: %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:  %s\n", cfg.LogDir)
		fmt.Printf("Storage:  %s\n", cfg.Storage.Type)
		fmt.Printf("Database: %s\n", cfg.Database.Type)
		return nil
	},
}

// path command
var pathCmd = &cobra.Command{
	Use:   "path",
	Short: "Manage scanned paths",
}

var pathAddCmd = &cobra.Command{
	Use:   "add PATH",
	Short: "Register a directory for scanning",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		recursive, _ := cmd.Flags().GetBool("recursive")

		a, err := newApp(cmd.Context(), "AddPath")
		if err != nil {
			return err
		}
		defer a.Close()

		p, err := a.AddPath(args[0], recursive)
		if err != nil {
			return fmt.Errorf("registering path: %w", err)
		}

		fmt.Printf("Registered path #%d: %s (recursive=%v)\n", p.ID, p.Path, p.Recursive)
		return nil
	},
}

var pathListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered paths",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "ListPaths")
		if err != nil {
			return err
		}
		defer a.Close()

		paths, err := a.ListPaths()
		if err != nil {
			return err
		}

		if len(paths) == 0 {
			fmt.Println("No paths registered.")
			return nil
		}

		for _, p := range paths {
			state := "enabled"
			if !p.Enabled {
				state = "disabled"
			}
			lastScanned := "never"
			if p.LastScannedAt != nil {
				lastScanned = p.LastScannedAt.Format("2006-01-02 15:04:05")
			}
			fmt.Printf("#%d  %-8s  recursive=%-5v  last scanned: %s  %s\n",
				p.ID, state, p.Recursive, lastScanned, p.Path)
		}
		return nil
	},
}

var pathRemoveCmd = &cobra.Command{
	Use:   "remove PATH",
	Short: "Unregister a path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "RemovePath")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.RemovePath(args[0]); err != nil {
			return err
		}
		fmt.Printf("Removed path: %s\n", args[0])
		return nil
	},
}

// exclude command
var excludeCmd = &cobra.Command{
	Use:   "exclude",
	Short: "Manage exclusion patterns",
}

var excludeAddCmd = &cobra.Command{
	Use:   "add PATTERN",
	Short: "Add an exclusion pattern",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "AddExclude")
		if err != nil {
			return err
		}
		defer a.Close()

		e, err := a.AddExclude(args[0])
		if err != nil {
			return fmt.Errorf("adding exclude: %w", err)
		}
		fmt.Printf("Added exclude #%d: %s\n", e.ID, e.Pattern)
		return nil
	},
}

var excludeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List exclusion patterns",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "ListExcludes")
		if err != nil {
			return err
		}
		defer a.Close()

		excludes, err := a.ListExcludes()
		if err != nil {
			return err
		}

		if len(excludes) == 0 {
			fmt.Println("No exclusion patterns.")
			return nil
		}

		for _, e := range excludes {
			fmt.Printf("#%d  %s\n", e.ID, e.Pattern)
		}
		return nil
	},
}

var excludeRemoveCmd = &cobra.Command{
	Use:   "remove ID",
	Short: "Remove an exclusion pattern",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid exclude id: %q", args[0])
		}

		a, err := newApp(cmd.Context(), "RemoveExclude")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.RemoveExclude(id); err != nil {
			return err
		}
		fmt.Printf("Removed exclude #%d\n", id)
		return nil
	},
}

// progressPrinter returns a progress callback that rewrites a single line on
// a TTY, or nil when stdout is not a terminal.
func progressPrinter() pp.ProgressFunc {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return nil
	}
	return func(p pp.ScanProgress) {
		fmt.Printf("\r\033[K%s: %d/%d  logged=%d skipped=%d errors=%d",
			p.Path, p.Scanned, p.Total, p.Logged, p.Skipped, p.Errors)
	}
}

func printScanResult(r *pp.ScanResult) {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Print("\r\033[K")
	}
	fmt.Printf("%s: %d file(s), %d logged, %d unchanged, %d error(s)\n",
		r.Path, r.Total, r.Logged, r.Skipped, len(r.Errors))
	for _, e := range r.Errors {
		fmt.Printf("  error: %s: %s\n", e.Path, e.Message)
	}
}

// scan command
var scanCmd = &cobra.Command{
	Use:   "scan [PATH]",
	Short: "Scan registered paths",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")

		if len(args) == 0 && !all {
			return fmt.Errorf("specify a registered path or --all")
		}

		a, err := newApp(cmd.Context(), "Scan")
		if err != nil {
			return err
		}
		defer a.Close()

		progress := progressPrinter()

		if all {
			results, err := a.ScanAll(progress)
			if err != nil {
				return err
			}
			for _, r := range results {
				printScanResult(r)
			}
			return nil
		}

		result, err := a.Scan(args[0], progress)
		if err != nil {
			return err
		}
		printScanResult(result)
		return nil
	},
}

// run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the background checksum processor",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, "Run")
		if err != nil {
			return err
		}
		defer a.Close()

		a.StartProcessor()
		fmt.Println("Checksum processor running. Press Ctrl-C to stop.")

		<-ctx.Done()
		fmt.Println("\nStopping...")
		a.StopProcessor()
		return nil
	},
}

// status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show catalog status",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "Status")
		if err != nil {
			return err
		}
		defer a.Close()

		pending, err := a.PendingCount()
		if err != nil {
			return err
		}

		stats := a.Stats()
		fmt.Printf("Pending observations: %d\n", pending)
		fmt.Printf("Processed today:      %d\n", stats.ProcessedToday)
		fmt.Printf("Failed today:         %d\n", stats.FailedToday)
		return nil
	},
}

// publish command
var publishCmd = &cobra.Command{
	Use:   "publish FILENAME",
	Short: "Register a file and upload its content if needed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "Publish")
		if err != nil {
			return err
		}
		defer a.Close()

		reg, up, err := a.Publish(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Registered %s\n", reg.Record.Filepath)
		fmt.Printf("SHA-256: %s\n", reg.Record.SHA256)

		if !reg.UploadRequired {
			fmt.Println("Content already stored; no upload needed.")
			return nil
		}

		switch up.Outcome {
		case pp.UploadStored:
			fmt.Printf("Uploaded %d byte(s) to %s\n", up.Size, up.Location)
		case pp.UploadHashMismatch:
			return fmt.Errorf("content changed during upload (declared %s, got %s)", up.SHA256, up.Computed)
		case pp.UploadRecordNotFound:
			fmt.Printf("Content stored at %s, but no matching registration was found\n", up.Location)
		}
		return nil
	},
}

// lookup command
var lookupCmd = &cobra.Command{
	Use:   "lookup SHA256",
	Short: "Look up a content record by hash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "Lookup")
		if err != nil {
			return err
		}
		defer a.Close()

		rec, err := a.Lookup(args[0])
		if err != nil {
			return err
		}
		if rec == nil {
			fmt.Println("No content record for that hash.")
			return nil
		}

		fmt.Printf("SHA-256:  %s\n", rec.SHA256)
		fmt.Printf("Filepath: %s\n", rec.Filepath)
		fmt.Printf("Size:     %d\n", rec.FileSize)
		fmt.Printf("Stored:   %v\n", rec.HasContent)
		if rec.ContentLocation != "" {
			fmt.Printf("Location: %s\n", rec.ContentLocation)
		}
		fmt.Printf("Created:  %s\n", rec.CreatedAt.Format("2006-01-02 15:04:05"))
		return nil
	},
}

// clones command
var clonesCmd = &cobra.Command{
	Use:   "clones SHA256",
	Short: "List all registrations sharing a hash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "Clones")
		if err != nil {
			return err
		}
		defer a.Close()

		clones, err := a.Clones(args[0])
		if err != nil {
			return err
		}
		if len(clones) == 0 {
			fmt.Println("No registrations for that hash.")
			return nil
		}

		for _, c := range clones {
			marker := " "
			uploaded := ""
			if c.HasFileContent {
				marker = "*"
				if c.FileUploadedAt != nil {
					uploaded = "  uploaded " + c.FileUploadedAt.Format(time.RFC3339)
				}
			}
			fmt.Printf("%s %s:%s%s\n", marker, c.Hostname, c.Filepath, uploaded)
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	pathCmd.AddCommand(pathAddCmd)
	pathAddCmd.Flags().BoolP("recursive", "r", true, "Recurse into subdirectories")
	pathCmd.AddCommand(pathListCmd)
	pathCmd.AddCommand(pathRemoveCmd)

	excludeCmd.AddCommand(excludeAddCmd)
	excludeCmd.AddCommand(excludeListCmd)
	excludeCmd.AddCommand(excludeRemoveCmd)

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(pathCmd)
	rootCmd.AddCommand(excludeCmd)
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().Bool("all", false, "Scan every enabled registered path")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(lookupCmd)
	rootCmd.AddCommand(clonesCmd)
}
