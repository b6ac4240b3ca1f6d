package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vango-dev/derive/internal/errors"
	"github.com/vango-dev/derive/pkg/derive"
	"github.com/vango-dev/derive/pkg/manifest"
)

func checkCmd(flags *globalFlags) *cobra.Command {
	var attach bool

	cmd := &cobra.Command{
		Use:   "check <manifest...>",
		Short: "Validate component manifests",
		Long: `Validate component manifests without running scenarios.

Each manifest is parsed, its expressions compiled and its behaviors
resolved. With --attach the component is also attached, which runs
the attached action and the initial computed pass.

Examples:
  derive check components/card.yaml
  derive check --attach components/*.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			opts := append(cfg.EngineOptions(), derive.WithLogger(newLogger(cfg, flags, cmd.ErrOrStderr())))

			failed := 0
			for _, path := range args {
				if err := checkManifest(cmd.OutOrStdout(), path, attach, opts); err != nil {
					failed++
					errorMsg("%s", path)
					printError(cmd.ErrOrStderr(), err, flags.jsonErrors)
				}
			}
			if failed > 0 {
				return errors.New(errors.CodeCLIFailed).
					WithSubject("check").
					WithDetail(fmt.Sprintf("%d of %d manifests are invalid", failed, len(args)))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&attach, "attach", false, "Attach each component and report runtime errors")

	return cmd
}

// checkManifest loads one manifest and writes a summary line to w.
func checkManifest(w io.Writer, path string, attach bool, opts []derive.Option) error {
	def, err := manifest.Load(path)
	if err != nil {
		return err
	}
	c, err := derive.New(def, opts...)
	if err != nil {
		return errors.New(errors.CodeManifestInvalid).WithSubject(path).Wrap(err)
	}

	var s summary
	s.add(def)
	line := fmt.Sprintf("%s: %s", c.Name(), s)

	if attach {
		if err := c.Attached(); err != nil {
			return err
		}
		if r := c.LastReport(); r != nil {
			line += fmt.Sprintf(", %d evaluated on attach", len(r.Evaluated))
		}
	}
	fmt.Fprintf(w, "\033[32m✓\033[0m %s\n", line)
	return nil
}

// summary counts the declarations of a definition and its behaviors.
type summary struct {
	computed  int
	watchers  int
	behaviors int
}

func (s *summary) add(def *derive.Definition) {
	s.computed += len(def.Computed)
	s.watchers += len(def.Watch)
	for _, b := range def.Behaviors {
		s.behaviors++
		s.add(b)
	}
}

func (s summary) String() string {
	parts := []string{
		plural(s.computed, "computed property", "computed properties"),
		plural(s.watchers, "watcher", "watchers"),
		plural(s.behaviors, "behavior", "behaviors"),
	}
	return strings.Join(parts, ", ")
}

func plural(n int, one, many string) string {
	if n == 1 {
		return "1 " + one
	}
	return fmt.Sprintf("%d %s", n, many)
}
