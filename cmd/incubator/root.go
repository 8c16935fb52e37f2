package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"incubator/internal/config"
	"incubator/internal/guard"
	"incubator/internal/logging"
	"incubator/internal/pipeline"
)

// version is set at build time via -ldflags.
var version = "dev"

// errUsage marks invalid arguments or configuration (exit code 3).
var errUsage = errors.New("invalid usage")

var rootFlags struct {
	configDir    string
	artifactsDir string
	repoPath     string
	phase        string
}

var rootCmd = &cobra.Command{
	Use:   "incubator",
	Short: "Gate code changes through an evidence-checked incubation pipeline",
	Long: "Incubator runs candidate branches through a resumable verification\n" +
		"pipeline and promotes them into the protected branch only when a\n" +
		"fail-closed judge accepts the recorded evidence.",
	SilenceUsage:  true,
	SilenceErrors: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.configDir, "config", "", "Config directory (incubator.yaml plus phase overlays)")
	pf.StringVar(&rootFlags.artifactsDir, "artifacts-dir", "", "Override the artifacts root")
	pf.StringVar(&rootFlags.repoPath, "repo", "", "Override the repository path")
	pf.StringVar(&rootFlags.phase, "phase", "", "Override the deployment phase (dev, staging, prod)")

	rootCmd.AddCommand(incubateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(artifactsCmd)
	rootCmd.AddCommand(baselineCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.Version = version
}

// loadConfig merges the layered configuration and applies the root flag
// overrides, then installs the global logger. Configuration failures are
// usage errors: nothing has run yet, so they map to exit code 3.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(rootFlags.configDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errUsage, err)
	}
	if rootFlags.artifactsDir != "" {
		cfg.ArtifactsDir = rootFlags.artifactsDir
	}
	if rootFlags.repoPath != "" {
		cfg.RepoPath = rootFlags.repoPath
	}
	if rootFlags.phase != "" {
		cfg.Phase = rootFlags.phase
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", errUsage, err)
	}
	logging.Init(logging.ParseLevel(cfg.Log.Level), cfg.Log.Format)
	return cfg, nil
}

// exitCode maps an error to the documented process exit code:
// 0 success, 1 pipeline failure, 2 judge rejection, 3 invalid arguments
// or configuration, 4 concurrency conflict.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, guard.ErrActiveIncubation), errors.Is(err, guard.ErrLocked):
		return 4
	case errors.Is(err, pipeline.ErrRejected):
		return 2
	case errors.Is(err, errUsage):
		return 3
	default:
		return 1
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}
