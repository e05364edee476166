package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/rivet-tracker/rivet/internal/configfile"
	"github.com/rivet-tracker/rivet/internal/storage/sqlite"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a rivet database in the current directory",
	Run: func(cmd *cobra.Command, args []string) {
		cwd, err := os.Getwd()
		if err != nil {
			fatalf("cannot determine working directory: %v", err)
		}
		dir := filepath.Join(cwd, configfile.DirName)
		if _, err := os.Stat(configfile.ConfigPath(dir)); err == nil {
			fatalf("already initialized: %s exists", configfile.ConfigPath(dir))
		}
		if err := os.MkdirAll(dir, 0750); err != nil {
			fatalf("failed to create %s: %v", dir, err)
		}

		cfg := configfile.DefaultConfig()
		if err := cfg.Save(dir); err != nil {
			fatalf("%v", err)
		}

		s, err := sqlite.New(cfg.DatabasePath(dir))
		if err != nil {
			fatalf("failed to create database: %v", err)
		}
		defer s.Close()

		if jsonOutput {
			outputJSON(map[string]string{
				"dir":      dir,
				"database": cfg.DatabasePath(dir),
			})
			return
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s initialized %s\n", green("✓"), cfg.DatabasePath(dir))
		fmt.Println("Next: add users, a project and a workflow:")
		fmt.Println("  rivet user add alice --admin")
		fmt.Println("  rivet project add Apollo")
		fmt.Println("  rivet workflow install Apollo workflow.yaml")
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
