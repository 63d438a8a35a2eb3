package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/mediasort/mediasort/internal/database"
	"github.com/mediasort/mediasort/internal/events"
	"github.com/mediasort/mediasort/internal/logger"
	"github.com/mediasort/mediasort/internal/organizer"
	"github.com/mediasort/mediasort/internal/scanner"
	"github.com/mediasort/mediasort/internal/watcher"
)

var (
	undoDryRun    bool
	sessionsLimit int
)

func init() {
	undoCmd.Flags().BoolVar(&undoDryRun, "dry-run", false, "report what would be deleted without touching files")
	sessionsCmd.Flags().IntVar(&sessionsLimit, "limit", 20, "maximum sessions to list")
}

// openDatabase opens (and migrates) the session database that lives inside
// the destination tree.
func openDatabase(destPath string) (*gorm.DB, error) {
	db, err := database.Open(cfg.DatabasePath(destPath))
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

var runCmd = &cobra.Command{
	Use:   "run <source> <destination>",
	Short: "Organize all media under source into destination",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		dest, err := filepath.Abs(args[1])
		if err != nil {
			return err
		}
		if _, err := os.Stat(source); err != nil {
			return fmt.Errorf("source directory not accessible: %w", err)
		}

		db, err := openDatabase(dest)
		if err != nil {
			return err
		}

		orch, err := organizer.New(cfg, db, source, dest, events.NewBus(), printProgress)
		if err != nil {
			return err
		}
		return driveRun(orch)
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume <destination>",
	Short: "Resume the most recent interrupted run for a destination",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dest, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}

		// The snapshot is consulted first for a quick summary; session and
		// file state in the database remain authoritative.
		if snap, err := organizer.LoadProgress(dest); err == nil && snap != nil {
			fmt.Printf("Last snapshot: %d/%d files done (%.1f%%), state %s\n",
				snap.Completed(), snap.FilesScanned, snap.Percent(), snap.State)
		}

		db, err := openDatabase(dest)
		if err != nil {
			return err
		}

		sessions := organizer.NewSessionManager(db)
		if n, err := sessions.RecoverOrphaned(); err != nil {
			return err
		} else if n > 0 {
			logger.Info("recovered orphaned sessions", "count", n)
		}

		session, err := sessions.FindResumable()
		if err != nil {
			return err
		}
		if session == nil {
			fmt.Println("Nothing to resume.")
			return nil
		}
		if session.ConfigHash != cfg.Fingerprint() {
			logger.Warn("configuration changed since the session started; already-organized files will be skipped, not moved")
		}
		fmt.Printf("Resuming session %s (%s -> %s)\n", session.ID, session.SourcePath, session.DestinationPath)

		return driveRun(organizer.NewForSession(cfg, db, session, events.NewBus(), printProgress))
	},
}

// driveRun runs an orchestrator in the foreground, translating SIGINT into a
// cooperative stop so in-flight copies finish cleanly.
func driveRun(orch *organizer.Orchestrator) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		<-sigCh
		fmt.Println("\nStopping... (in-flight files will finish)")
		if err := orch.Stop(); err != nil {
			logger.Warn("stop request rejected", "error", err)
		}
	}()

	err := orch.Run(context.Background())
	printSummary(orch)
	return err
}

var statusCmd = &cobra.Command{
	Use:   "status <destination>",
	Short: "Show the latest run status for a destination",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dest, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}

		db, err := openDatabase(dest)
		if err != nil {
			return err
		}
		sessions := organizer.NewSessionManager(db)

		list, err := sessions.List(1)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}
		session := list[0]

		fmt.Printf("Session:     %s\n", session.ID)
		fmt.Printf("Status:      %s\n", session.Status)
		fmt.Printf("Source:      %s\n", session.SourcePath)
		fmt.Printf("Destination: %s\n", session.DestinationPath)
		fmt.Printf("Started:     %s\n", session.StartedAt.Format(time.RFC1123))
		if session.EndedAt != nil {
			fmt.Printf("Ended:       %s\n", session.EndedAt.Format(time.RFC1123))
		}
		if session.ErrorMessage != "" {
			fmt.Printf("Error:       %s\n", session.ErrorMessage)
		}

		stats, err := sessions.Stats(session.ID)
		if err != nil {
			return err
		}
		fmt.Printf("Files:       %d total, %d organized, %d skipped, %d duplicates, %d errors\n",
			stats.TotalFiles, stats.Completed, stats.Skipped, stats.Duplicates, stats.Errors)
		return nil
	},
}

var undoCmd = &cobra.Command{
	Use:   "undo <destination> [session-id]",
	Short: "Delete the files a session copied into the destination",
	Long: `Undo removes every file the session placed in the destination and prunes
directories left empty. Source files are never touched. Missing destination
files are skipped, so undo can be re-run safely.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dest, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}

		db, err := openDatabase(dest)
		if err != nil {
			return err
		}
		sessions := organizer.NewSessionManager(db)

		var sessionID string
		if len(args) == 2 {
			sessionID = args[1]
		} else {
			list, err := sessions.List(1)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				return fmt.Errorf("no sessions found for %s", dest)
			}
			sessionID = list[0].ID
		}

		result, err := sessions.Undo(sessionID, undoDryRun)
		if err != nil {
			return err
		}

		verb := "Deleted"
		if undoDryRun {
			verb = "Would delete"
		}
		fmt.Printf("%s %d files and %d directories", verb, result.FilesDeleted, result.DirsDeleted)
		if result.FilesFailed > 0 {
			fmt.Printf(" (%d failures)", result.FilesFailed)
		}
		fmt.Println()
		for _, msg := range result.Errors {
			fmt.Println("  !", msg)
		}
		return nil
	},
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions <destination>",
	Short: "List recent sessions for a destination",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dest, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}

		db, err := openDatabase(dest)
		if err != nil {
			return err
		}

		list, err := organizer.NewSessionManager(db).List(sessionsLimit)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}

		for _, s := range list {
			fmt.Printf("%s  %-10s  %s  %d files  %s\n",
				s.ID, s.Status, s.StartedAt.Format("2006-01-02 15:04"),
				s.FilesProcessed, s.SourcePath)
		}
		return nil
	},
}

var duplicatesCmd = &cobra.Command{
	Use:   "duplicates <directory>",
	Short: "Report duplicate files under a directory without copying anything",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}

		sc := scanner.New(cfg.Scanner.SkipFolders, cfg.Scanner.SkipFiles, cfg.Scanner.IncludeHidden)
		var paths []string
		for entry := range sc.Scan(cmd.Context(), root) {
			paths = append(paths, entry.Path)
		}
		fmt.Printf("Scanned %d files.\n", len(paths))

		engine := organizer.NewDedupEngine(nil, organizer.NewHasher(nil))
		groups := engine.FindDuplicatesInSet(paths)
		if len(groups) == 0 {
			fmt.Println("No duplicates found.")
			return nil
		}

		reclaimable := organizer.SpaceReclaimable(groups, func(path string) int64 {
			info, err := os.Stat(path)
			if err != nil {
				return 0
			}
			return info.Size()
		})

		fmt.Printf("%d duplicate groups, %.1f MB reclaimable:\n\n",
			len(groups), float64(reclaimable)/(1<<20))
		for digest, members := range groups {
			fmt.Printf("%s\n", digest[:16])
			fmt.Printf("  keep:  %s\n", members[0])
			for _, dup := range members[1:] {
				fmt.Printf("  dup:   %s\n", dup)
			}
		}
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch <source>",
	Short: "Watch a directory and report new media files as they settle",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}

		bus := events.NewBus()
		bus.Subscribe(func(e events.Event) {
			if e.Type == events.EventFileFound {
				fmt.Printf("new file: %s (%s)\n", e.Data["path"], e.Data["type"])
			}
		})

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		err = watcher.New(source, bus).Watch(ctx)
		if err == context.Canceled {
			return nil
		}
		return err
	},
}

func printProgress(p *organizer.Progress) {
	if p.State != organizer.StateProcessing {
		return
	}
	eta := ""
	if p.ETASeconds > 0 {
		eta = fmt.Sprintf(", ETA %s", (time.Duration(p.ETASeconds) * time.Second).Round(time.Second))
	}
	fmt.Printf("\r%d/%d (%.1f%%) %.1f files/s%s    ",
		p.Completed(), p.FilesScanned, p.Percent(), p.Throughput, eta)
}

func printSummary(orch *organizer.Orchestrator) {
	p := orch.Snapshot()
	fmt.Printf("\n\nState:      %s\n", p.State)
	fmt.Printf("Organized:  %d\n", p.FilesProcessed)
	fmt.Printf("Skipped:    %d\n", p.FilesSkipped)
	fmt.Printf("Duplicates: %d\n", p.FilesDuplicate)
	fmt.Printf("Errors:     %d\n", p.FilesError)
	if len(p.CategoryCounts) > 0 {
		fmt.Println("Categories:")
		for category, n := range p.CategoryCounts {
			fmt.Printf("  %-24s %d\n", category, n)
		}
	}
}
