// Package main is the entry point for the Sherpa CLI
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cloud-shuttle/sherpa/internal/config"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sherpa",
		Short: "Plan and execute development goals with an AI engine",
		Long: `Sherpa turns a development goal into an ordered plan, executes it one
step at a time through a reasoning engine, and learns from failures. When a step
fails you decide whether to retry, skip, or stop; resolutions that work are
remembered and suggested the next time a similar failure appears.`,
		Version: "0.1.0",
	}

	rootCmd.AddCommand(
		initCmd(),
		runCmd(),
		analyzeCmd(),
		planCmd(),
		knowledgeCmd(),
		historyCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// findProjectDir locates the sherpa project root by searching upward
func findProjectDir() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, config.StateDirName)); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("not a sherpa project (or any parent up to root); run 'sherpa init' first")
		}
		dir = parent
	}
}

// loadProject locates the project root and loads its configuration
func loadProject() (*config.Config, error) {
	dir, err := findProjectDir()
	if err != nil {
		return nil, err
	}
	return config.Load(dir)
}
