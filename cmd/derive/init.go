package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vango-dev/derive/internal/config"
	"github.com/vango-dev/derive/internal/errors"
)

const exampleScenario = `name: example
definition:
  name: counter
  data:
    count: 1
  computed:
    - name: double
      expr: count * 2
  watch:
    - keys: double
      set:
        last: double
steps:
  - attach: true
    expect:
      double: 2
  - set:
      count: 5
    expect:
      double: 10
      last: 10
    expectFired: [double]
`

func initCmd() *cobra.Command {
	var (
		force   bool
		example bool
	)

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Create derive.json",
		Long: `Create a derive.json with default settings in dir, or in the
current directory.

Examples:
  derive init
  derive init --example my-components`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return runInit(dir, force, example)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing derive.json")
	cmd.Flags().BoolVar(&example, "example", false, "Also write an example scenario")

	return cmd
}

func runInit(dir string, force, example bool) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return errors.New(errors.CodeCLIArgs).WithSubject(dir).Wrap(err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return errors.New(errors.CodeCLIFailed).WithSubject(dir).Wrap(err)
	}

	if config.Exists(abs) && !force {
		return errors.New(errors.CodeCLIArgs).
			WithSubject(config.ConfigFileName).
			WithDetail(config.ConfigFileName + " already exists in " + abs).
			WithSuggestion("Use --force to overwrite it")
	}

	cfg := config.New()
	cfg.Name = filepath.Base(abs)
	if err := cfg.SaveTo(filepath.Join(abs, config.ConfigFileName)); err != nil {
		return err
	}
	success("Created %s", filepath.Join(dir, config.ConfigFileName))

	if !example {
		return nil
	}
	scenarios := filepath.Join(abs, cfg.Paths.Scenarios)
	if err := os.MkdirAll(scenarios, 0o755); err != nil {
		return errors.New(errors.CodeCLIFailed).WithSubject(scenarios).Wrap(err)
	}
	path := filepath.Join(scenarios, "example"+scenarioSuffix)
	if _, err := os.Stat(path); err == nil && !force {
		warn("%s exists, skipped", path)
		return nil
	}
	if err := os.WriteFile(path, []byte(exampleScenario), 0o644); err != nil {
		return errors.New(errors.CodeCLIFailed).WithSubject(path).Wrap(err)
	}
	success("Created %s", filepath.Join(dir, cfg.Paths.Scenarios, "example"+scenarioSuffix))
	fmt.Println()
	info("Run it with: derive run")
	return nil
}
