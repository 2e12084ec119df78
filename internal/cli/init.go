package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/forgellm/forge/internal/config"
	"github.com/forgellm/forge/internal/errors"
	"github.com/forgellm/forge/internal/ui"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// InitOptions holds options for the init command.
type InitOptions struct {
	Dir            string // Directory to write .forge.yaml into
	SessionsDir    string // Pre-specified sessions directory
	Command        string // Pre-specified trainer command, space separated
	Overwrite      bool   // Overwrite existing config without asking
	NonInteractive bool   // Skip prompts, use defaults
}

var (
	initForce       bool
	initSessionsDir string
	initCommandFlag string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a .forge.yaml in the current directory",
	Long: `Write a starter config with the default trainer command, sessions
directory and monitor settings. Prompts for the main values when run in a
terminal.

Examples:
  forge init
  forge init --sessions-dir runs --command "python -m mlx_lm lora"
  forge init --force`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return Init(InitOptions{
			Dir:            ".",
			SessionsDir:    initSessionsDir,
			Command:        initCommandFlag,
			Overwrite:      initForce,
			NonInteractive: machineMode || !term.IsTerminal(int(os.Stdin.Fd())),
		})
	},
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "overwrite an existing config")
	initCmd.Flags().StringVar(&initSessionsDir, "sessions-dir", "", "where run directories are created")
	initCmd.Flags().StringVar(&initCommandFlag, "command", "", "trainer command, e.g. \"python -m mlx_lm lora\"")
	rootCmd.AddCommand(initCmd)
}

// Init creates a new .forge.yaml configuration file.
func Init(opts InitOptions) error {
	dir := opts.Dir
	if dir == "" {
		dir = "."
	}
	configPath := filepath.Join(dir, config.ConfigFileName)
	replace := opts.Overwrite

	if _, err := os.Stat(configPath); err == nil && !opts.Overwrite {
		if opts.NonInteractive {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("Config file already exists: %s", configPath),
				"Use --force to overwrite")
		}
		var overwrite bool
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("Config file '%s' already exists. Overwrite?", config.ConfigFileName)).
					Value(&overwrite),
			),
		)
		if err := form.Run(); err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig,
				"Failed to get user input",
				"Try running with --force to overwrite")
		}
		if !overwrite {
			fmt.Println("Cancelled.")
			return nil
		}
		replace = true
	}

	cfg := config.DefaultConfig()
	sessionsDir := opts.SessionsDir
	command := opts.Command
	if !opts.NonInteractive {
		if sessionsDir == "" {
			sessionsDir = cfg.SessionsDir
		}
		if command == "" {
			command = strings.Join(cfg.Trainer.Command, " ")
		}
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Sessions directory").
					Description("Each run gets its own directory here").
					Value(&sessionsDir),
				huh.NewInput().
					Title("Trainer command").
					Description("{config} and {output_dir} are filled in per run").
					Value(&command),
			),
		)
		if err := form.Run(); err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig,
				"Failed to get user input",
				"Pass --sessions-dir and --command instead")
		}
	}
	if sessionsDir != "" {
		cfg.SessionsDir = sessionsDir
	}
	if fields := strings.Fields(command); len(fields) > 0 {
		cfg.Trainer.Command = fields
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	if replace {
		if err := os.Remove(configPath); err != nil && !os.IsNotExist(err) {
			return errors.WrapWithCode(err, errors.ErrConfig,
				"Couldn't replace "+configPath, "Check file permissions")
		}
	}
	if err := config.Write(configPath, cfg); err != nil {
		return err
	}

	if machineMode {
		return WriteJSONSuccess(os.Stdout, map[string]interface{}{"config_path": configPath})
	}
	fmt.Printf("%s Created %s\n", ui.SymbolSuccess, configPath)
	fmt.Printf("  Next: forge train <config.yaml>\n")
	return nil
}
