package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/grippy/hollywood/config"
	"github.com/spf13/cobra"
)

var (
	systemName string
	configPath string
)

var devCmd = &cobra.Command{
	Use:   "dev",
	Short: "Run a system's actors in development mode",
	Long:  `dev checks that the named system exists, then runs the dev bin of every actor declared with a dev descriptor, one after another, waiting for each to exit. It does not rebuild or restart actors on file changes.`,
	Args:  cobra.NoArgs,
	RunE:  runDev,
}

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Run a system's actor test binaries",
	Long:  `test runs every actor declared with a test descriptor for the named system.`,
	Args:  cobra.NoArgs,
	RunE:  runTest,
}

func init() {
	for _, cmd := range []*cobra.Command{devCmd, testCmd} {
		cmd.Flags().StringVar(&systemName, "system", "", "system name to run (required)")
		cmd.Flags().StringVar(&configPath, "config", "hollywood.yaml", "path to the declarative config file")
		cmd.MarkFlagRequired("system")
	}
	rootCmd.AddCommand(devCmd)
	rootCmd.AddCommand(testCmd)
}

func loadAndValidate() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if _, err := cfg.FindSystem(systemName); err != nil {
		return nil, err
	}
	if len(cfg.Actors()) == 0 {
		return nil, fmt.Errorf("hollywood: config %s declares no actors", configPath)
	}
	return cfg, nil
}

func runDev(cmd *cobra.Command, args []string) error {
	cfg, err := loadAndValidate()
	if err != nil {
		return err
	}
	for _, actor := range cfg.Actors() {
		if actor.Dev == nil {
			continue
		}
		fmt.Printf("starting %s (dev): %s\n", actor.Name, actor.Dev.Bin)
		if err := runActorBin(actor.Dev.Bin, actor.Dev.Env); err != nil {
			return fmt.Errorf("hollywood: dev %s: %w", actor.Name, err)
		}
	}
	return nil
}

func runTest(cmd *cobra.Command, args []string) error {
	cfg, err := loadAndValidate()
	if err != nil {
		return err
	}
	for _, actor := range cfg.Actors() {
		if actor.Test == nil {
			continue
		}
		fmt.Printf("running %s (test): %s\n", actor.Name, actor.Test.Bin)
		if err := runActorBin(actor.Test.Bin, actor.Test.Env); err != nil {
			return fmt.Errorf("hollywood: test %s: %w", actor.Name, err)
		}
	}
	return nil
}

func runActorBin(bin string, env []string) error {
	c := exec.Command(bin)
	c.Env = append(os.Environ(), env...)
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	return c.Run()
}
