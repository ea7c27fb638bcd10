// Package initcmder provides the init command for initializing a local .kb
// directory in the current working directory.
package initcmder

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/kb/pkg/cliui"
	"github.com/papercomputeco/kb/pkg/config"
	"github.com/papercomputeco/kb/pkg/dotdir"
)

const initLongDesc string = `Initialize a new .kb/ directory in the current working directory.

Creates a local .kb/ directory that takes precedence over ~/.kb/ for
configuration and the snapshot file, and writes a config.toml populated
from a preset.

Presets:
  ollama    Local Ollama embeddings (default)
  gemini    Google Gemini embeddings, set embedding.api_key afterwards
  offline   No embedding provider, every vector is zero

Examples:
  kb init
  kb init --preset gemini`

const initShortDesc string = "Initialize a local .kb/ directory"

func NewInitCmd() *cobra.Command {
	var preset string

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd.OutOrStdout(), preset)
		},
	}

	cmd.Flags().StringVar(&preset, "preset", "", "Configuration preset (ollama, gemini, offline)")

	return cmd
}

func runInit(w io.Writer, preset string) error {
	cfg := config.NewDefaultConfig()
	if preset != "" {
		var err error
		cfg, err = config.PresetConfig(preset)
		if err != nil {
			return err
		}
	}

	dir, err := dotdir.NewManager().Init()
	if err != nil {
		return err
	}

	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Keep an existing config.toml untouched.
	_, err = os.Stat(filepath.Join(dir, "config.toml"))
	switch {
	case err == nil:
		fmt.Fprintf(w, "  %s Already initialized: %s\n", cliui.SuccessMark, dir)
		return nil
	case !errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("checking config: %w", err)
	}

	if err := cfger.SaveConfig(cfg); err != nil {
		return err
	}

	fmt.Fprintf(w, "  %s Initialized .kb directory: %s\n", cliui.SuccessMark, dir)
	return nil
}
