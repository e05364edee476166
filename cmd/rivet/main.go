package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/rivet-tracker/rivet/internal/config"
	"github.com/rivet-tracker/rivet/internal/configfile"
	"github.com/rivet-tracker/rivet/internal/debug"
	"github.com/rivet-tracker/rivet/internal/engine"
	"github.com/rivet-tracker/rivet/internal/journal"
	"github.com/rivet-tracker/rivet/internal/storage"
	"github.com/rivet-tracker/rivet/internal/storage/sqlite"
	"github.com/rivet-tracker/rivet/internal/types"
)

var (
	dbPath     string
	actorName  string
	jsonOutput bool
	verbose    bool
	quiet      bool

	store    storage.Storage
	eng      *engine.Engine
	rivetDir string
)

func init() {
	if err := config.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize config: %v\n", err)
	}

	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (default: auto-discover .rivet/rivet.db)")
	rootCmd.PersistentFlags().StringVar(&actorName, "actor", "", "Acting user name (default: $RIVET_ACTOR or $USER)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable debug output")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "Suppress non-essential output")
}

var rootCmd = &cobra.Command{
	Use:   "rivet",
	Short: "rivet - workflow-driven issue tracker",
	Long:  `A workflow engine for issues: states, typed fields, transitions and permissions are defined per template, and every change is audited.`,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Flags win over config file and environment
		if !cmd.Flags().Changed("json") {
			jsonOutput = config.GetBool("json")
		}
		if actorName == "" {
			actorName = config.GetString("actor")
		}
		if actorName == "" {
			actorName = os.Getenv("USER")
		}
		debug.SetVerbose(verbose)
		debug.SetQuiet(quiet)

		// Commands that run before a database exists
		switch cmd.Name() {
		case "init", "version", "help", "completion":
			return
		}

		openStore()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if store != nil {
			_ = store.Close()
			store = nil
		}
		debug.CloseOpsLog()
	},
}

// openStore locates the data directory, opens the database and builds the
// engine. Exits with a hint when no database is found.
func openStore() {
	path := dbPath
	if path == "" {
		path = config.GetString("db")
	}

	var journalPath string
	if path == "" {
		cwd, err := os.Getwd()
		if err != nil {
			fatalf("cannot determine working directory: %v", err)
		}
		rivetDir = configfile.Discover(cwd)
		if rivetDir == "" {
			fatalf("no %s directory found; run 'rivet init' first", configfile.DirName)
		}
		cfg, err := configfile.Load(rivetDir)
		if err != nil {
			fatalf("%v", err)
		}
		if cfg == nil {
			cfg = configfile.DefaultConfig()
		}
		path = cfg.DatabasePath(rivetDir)
		if config.GetBool("journal.enabled") {
			journalPath = cfg.JournalPath(rivetDir)
		}
		debug.InitOpsLog(rivetDir)
	}

	s, err := sqlite.New(path)
	if err != nil {
		fatalf("failed to open database: %v", err)
	}
	store = s
	eng = engine.New(store)
	if journalPath != "" {
		eng.SetJournal(journal.NewWriter(journalPath))
	}
}

// currentActor resolves the acting user by name and loads its groups
func currentActor(ctx context.Context) *types.Actor {
	if actorName == "" {
		fatalf("no actor: set --actor, RIVET_ACTOR or USER")
	}
	user, err := store.GetUserByName(ctx, actorName)
	if errors.Is(err, storage.ErrNotFound) {
		fatalf("unknown user %q", actorName)
	}
	if err != nil {
		fatalf("%v", err)
	}
	groups, err := store.GetUserGroups(ctx, user.ID)
	if err != nil {
		fatalf("%v", err)
	}
	actor := &types.Actor{UserID: user.ID, Admin: user.Admin, Groups: groups}
	if user.Timezone != "" {
		if loc, err := time.LoadLocation(user.Timezone); err == nil {
			actor.Timezone = loc
		}
	}
	return actor
}

func outputJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fatalf("failed to encode JSON: %v", err)
	}
	fmt.Println(string(data))
}

func fatalf(format string, args ...any) {
	red := color.New(color.FgRed).SprintFunc()
	fmt.Fprintf(os.Stderr, "%s %s\n", red("Error:"), fmt.Sprintf(format, args...))
	os.Exit(1)
}

// reportError prints engine errors in their user-facing shape: batched
// violations line by line, denials and not-founds as one line each.
func reportError(err error) {
	var verr *engine.ValidationError
	if errors.As(err, &verr) {
		red := color.New(color.FgRed).SprintFunc()
		fmt.Fprintf(os.Stderr, "%s invalid input:\n", red("Error:"))
		for _, v := range verr.Violations {
			fmt.Fprintf(os.Stderr, "  %s: %s\n", v.Field, v.Message)
		}
		os.Exit(1)
	}
	fatalf("%v", err)
}

func main() {
	err := rootCmd.Execute()
	debug.LogOp(usedCommand(), os.Args[1:], err)
	if err != nil {
		os.Exit(1)
	}
}

func usedCommand() string {
	if len(os.Args) > 1 {
		return os.Args[1]
	}
	return ""
}
