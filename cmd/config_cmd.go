package cmd

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/smriti/internal/cli"
	"github.com/theirongolddev/smriti/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show current configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfig,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the effective configuration to the config file",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var flagConfigForce bool

func init() {
	configInitCmd.Flags().BoolVar(&flagConfigForce, "force", false, "Overwrite an existing config file")
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

func configFile() string {
	if flagConfig != "" {
		return flagConfig
	}
	return config.ConfigPath()
}

func runConfig(_ *cobra.Command, _ []string) error {
	const w = 18

	fmt.Printf("  Config file: %s\n", configFile())
	if fileExists(configFile()) {
		fmt.Println("  Status: loaded")
	} else {
		fmt.Println("  Status: using defaults (no config file)")
	}
	fmt.Println()

	fmt.Println("  [General]")
	fmt.Println(cli.RenderKV("Database", cfg.DatabasePath(), w))
	projects := cfg.General.ProjectsRoot
	if projects == "" {
		projects = "not set (project ids use folder names)"
	}
	fmt.Println(cli.RenderKV("Projects root", projects, w))
	fmt.Println(cli.RenderKV("Workers", strconv.Itoa(cfg.General.Workers), w))
	fmt.Println(cli.RenderKV("Include subagents", strconv.FormatBool(cfg.General.IncludeSubagents), w))
	fmt.Println()

	fmt.Println("  [Agents]")
	roots := agentRoots(config.KnownAgents)
	enabled := make(map[string]bool)
	for _, a := range cfg.EnabledAgents() {
		enabled[string(a)] = true
	}
	for _, a := range config.KnownAgents {
		state := "disabled"
		if enabled[string(a)] {
			state = "enabled"
		}
		fmt.Println(cli.RenderKV(string(a), state+"  "+roots[a], w))
	}
	fmt.Println()

	fmt.Println("  [Logging]")
	fmt.Println(cli.RenderKV("Level", cfg.Logging.Level, w))
	fmt.Println(cli.RenderKV("Format", cfg.Logging.Format, w))
	fmt.Println()

	if len(cfg.Pricing.Overrides) > 0 {
		fmt.Println("  [Pricing overrides]")
		names := make([]string, 0, len(cfg.Pricing.Overrides))
		for name := range cfg.Pricing.Overrides {
			names = append(names, name)
		}
		sort.Strings(names)
		pricer := config.NewPricer(cfg.Pricing)
		for _, name := range names {
			p, ok := pricer.Lookup(name, time.Now())
			if !ok {
				fmt.Println(cli.RenderKV(name, "incomplete override", w))
				continue
			}
			fmt.Println(cli.RenderKV(name, fmt.Sprintf("$%.2f in / $%.2f out per MTok", p.InputPerMTok, p.OutputPerMTok), w))
		}
		fmt.Println()
	}

	fmt.Println("  Run `smriti config init` to write these settings to disk.")
	return nil
}

func runConfigInit(_ *cobra.Command, _ []string) error {
	path := configFile()
	if fileExists(path) && !flagConfigForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := config.SaveTo(path, cfg); err != nil {
		return err
	}
	fmt.Printf("  Wrote %s\n", path)
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
