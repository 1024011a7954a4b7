// cmd/premerge/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"premerge/client"
	"premerge/internal/config"
	apperrors "premerge/internal/errors"
	"premerge/internal/logging"
	"premerge/internal/predictor"
	"premerge/internal/session"
	"premerge/internal/workspace"
	shared "premerge/shared/types"
	"premerge/shared/utils"
)

// errCheckFailed makes the process exit 1 after the failure was printed.
var errCheckFailed = errors.New("analysis could not run")

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "premerge",
	Short: "Predict merge conflicts before you commit",
	Long: `premerge compares your working copy of a file against other branches and
reports the lines that would conflict if those branches were merged.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default premerge.toml or .premerge/config.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	var initCmd = &cobra.Command{
		Use:   "init",
		Short: "Create the premerge state directory and a starter config",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("getting current directory: %w", err)
			}

			if err := workspace.Initialize(dir); err != nil {
				return err
			}

			path := configPath
			if path == "" {
				path = filepath.Join(dir, workspace.StateDir, "config.toml")
			}
			if err := config.InitConfig(path); err != nil {
				return err
			}

			fmt.Println("Wrote", path)
			return nil
		},
	}

	var checkCmd = &cobra.Command{
		Use:   "check <file>",
		Short: "Analyze a file against the tracked branches",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			branches, _ := cmd.Flags().GetStringArray("branch")
			asJSON, _ := cmd.Flags().GetBool("json")
			server, _ := cmd.Flags().GetString("server")

			resp, err := check(cmd.Context(), server, args[0], branches)
			if resp == nil {
				return err
			}

			if asJSON {
				if jsonErr := printJSON(os.Stdout, resp); jsonErr != nil {
					return jsonErr
				}
			} else if err != nil {
				errorColor.Fprintf(os.Stderr, "Could not analyze %s: %v\n", resp.Path, err)
			} else {
				printRegions(os.Stdout, resp.Path, resp.Regions)
			}

			if err != nil {
				return errCheckFailed
			}
			return nil
		},
	}
	checkCmd.Flags().StringArrayP("branch", "b", nil, "branch to compare against (repeatable; default tracked branches)")
	checkCmd.Flags().Bool("json", false, "print the result as JSON")
	checkCmd.Flags().String("server", "", "ask a running daemon at this URL instead of analyzing locally")

	var atCmd = &cobra.Command{
		Use:   "at <file> <line>",
		Short: "Show what other branches have at a line of the last analysis",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			line, err := parseLine(args[1])
			if err != nil {
				return err
			}

			if server, _ := cmd.Flags().GetString("server"); server != "" {
				resp, err := client.New(server).Regions(absPath(args[0]), line)
				if err != nil {
					return err
				}
				if resp.Error != "" {
					errorColor.Fprintf(os.Stderr, "Last analysis failed: %s\n", resp.Error)
				}
				printHover(os.Stdout, line+1, resp.Regions)
				return nil
			}

			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			defer ws.Close()

			path := absPath(args[0])
			rep, err := ws.Reports.Get(path)
			if err != nil {
				return err
			}
			if rep == nil {
				return fmt.Errorf("no analysis for %s; run `premerge check %s` first", args[0], args[0])
			}

			if rep.Failed() {
				errorColor.Fprintf(os.Stderr, "Last analysis failed: %s\n", rep.Error)
			}
			if current, err := ws.Documents.CurrentContent(path); err == nil && rep.Stale(current) {
				regionColor.Fprintln(os.Stderr, "File changed since the last analysis; line numbers may be off.")
			}

			printHover(os.Stdout, line+1, utils.ToRegions(rep.RegionsAt(line)))
			return nil
		},
	}
	atCmd.Flags().String("server", "", "ask a running daemon at this URL")

	var watchCmd = &cobra.Command{
		Use:   "watch <file>...",
		Short: "Re-analyze files whenever they or the repository refs change",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			defer ws.Close()

			return watch(cmd.Context(), ws, args)
		},
	}

	var branchesCmd = &cobra.Command{
		Use:   "branches",
		Short: "List branches and which ones are tracked",
		RunE: func(cmd *cobra.Command, args []string) error {
			if server, _ := cmd.Flags().GetString("server"); server != "" {
				branches, err := client.New(server).Branches()
				if err != nil {
					return err
				}
				printBranches(os.Stdout, branches)
				return nil
			}

			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			defer ws.Close()

			branches, err := ws.Branches(cmd.Context())
			if err != nil {
				return err
			}
			printBranches(os.Stdout, branches)
			return nil
		},
	}
	branchesCmd.Flags().String("server", "", "ask a running daemon at this URL")

	var fetchCmd = &cobra.Command{
		Use:   "fetch",
		Short: "Fetch all remotes and drop cached branch content",
		RunE: func(cmd *cobra.Command, args []string) error {
			if server, _ := cmd.Flags().GetString("server"); server != "" {
				if err := client.New(server).Fetch(); err != nil {
					return err
				}
				successColor.Println("Fetched")
				return nil
			}

			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			defer ws.Close()

			if err := ws.Fetch(cmd.Context()); err != nil {
				return err
			}
			successColor.Println("Fetched")
			return nil
		},
	}
	fetchCmd.Flags().String("server", "", "ask a running daemon at this URL")

	var downloadCmd = &cobra.Command{
		Use:   "download <remote/branch>",
		Short: "Create a local tracking branch for a remote branch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			defer ws.Close()

			local, err := ws.DownloadBranch(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Print("Created branch ")
			branchColor.Println(local)
			return nil
		},
	}

	var cacheCmd = &cobra.Command{
		Use:   "cache",
		Short: "Manage cached branch content",
	}

	var cacheClearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Drop every cached file snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			if server, _ := cmd.Flags().GetString("server"); server != "" {
				if err := client.New(server).ClearCache(); err != nil {
					return err
				}
				successColor.Println("Cache cleared")
				return nil
			}

			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			defer ws.Close()

			ws.Detector.ClearCache()
			if reports, _ := cmd.Flags().GetBool("reports"); reports {
				if err := ws.Reports.Clear(); err != nil {
					return err
				}
			}
			successColor.Println("Cache cleared")
			return nil
		},
	}
	cacheClearCmd.Flags().String("server", "", "ask a running daemon at this URL")
	cacheClearCmd.Flags().Bool("reports", false, "also drop stored analysis reports")

	var diffCmd = &cobra.Command{
		Use:   "diff <ref> <file>",
		Short: "Show the working copy of a file against its content at ref",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			defer ws.Close()

			result, err := ws.FileDiff(cmd.Context(), args[0], absPath(args[1]))
			if err != nil {
				return fmt.Errorf("showing diff for %s: %w", args[1], err)
			}

			fmt.Printf("diff --premerge a/%s b/%s\n", args[1], args[1])
			printColoredDiff(os.Stdout, result.Format())
			return nil
		},
	}

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(atCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(branchesCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(diffCmd)

	cacheCmd.AddCommand(cacheClearCmd)
}

// parseLine converts a 1-based line argument to a zero-based line.
func parseLine(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("line must be a positive number, got %q", s)
	}
	return n - 1, nil
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

func loadConfig() (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	logger, err := logging.NewCLILogger(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing logger: %w", err)
	}
	return cfg, logger, nil
}

func openWorkspace() (*workspace.Workspace, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting current directory: %w", err)
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}

	ws, err := workspace.Open(cwd, cfg, logger.Logger)
	if err != nil {
		return nil, fmt.Errorf("opening workspace: %w", err)
	}
	return ws, nil
}

// check analyzes path locally or through a daemon. A resolution failure
// returns the failed response together with its error.
func check(ctx context.Context, server, path string, branches []string) (*shared.AnalyzeResponse, error) {
	if server != "" {
		return client.New(server).Analyze(shared.AnalyzeRequest{
			Path:     absPath(path),
			Branches: branches,
		})
	}

	ws, err := openWorkspace()
	if err != nil {
		return nil, err
	}
	defer ws.Close()

	rep, err := ws.Check(ctx, absPath(path), branches, nil)
	if rep == nil {
		return nil, err
	}

	resp := &shared.AnalyzeResponse{
		Status:   shared.StatusOK,
		Path:     rep.Path,
		PassID:   rep.PassID,
		Regions:  utils.ToRegions(rep.Regions),
		Branches: rep.Branches,
	}
	if err != nil {
		resp.Status = shared.StatusFailed
		resp.Error = apperrors.As(err)
	}
	return resp, err
}

func watch(ctx context.Context, ws *workspace.Workspace, paths []string) error {
	persist := ws.CommitHook()
	sessions := ws.NewManager(session.WithCommitHook(func(path, passID string, snap predictor.Snapshot) {
		persist(path, passID, snap)

		rel, err := filepath.Rel(ws.Root, path)
		if err != nil {
			rel = path
		}
		if snap.Err != nil {
			errorColor.Fprintf(os.Stderr, "Could not analyze %s: %v\n", rel, snap.Err)
			return
		}
		printRegions(os.Stdout, rel, utils.ToRegions(snap.Regions))
	}))
	defer sessions.Close()

	watcher, err := session.NewWatcher(sessions, ws.GitDir(), ws.Detector.ClearCache, ws.Logger)
	if err != nil {
		return err
	}
	defer watcher.Close()

	for _, p := range paths {
		if err := watcher.Watch(absPath(p)); err != nil {
			return err
		}
	}

	ws.Logger.Info("watching", zap.Strings("files", paths))
	if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		if !errors.Is(err, errCheckFailed) {
			errorColor.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
