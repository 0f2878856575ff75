package commands

import (
	"fmt"

	"github.com/dyluth/tocsin/internal/config"
	"github.com/spf13/cobra"
)

var (
	version string
	commit  string
	date    string
)

// Global flags. Each one, when set, takes precedence over the matching
// TOCSIN_* environment variable and the config file.
var (
	configPath   string
	flagPrefix   string
	flagFacility string
	flagRedisURL string
	flagFSDir    string
	flagLogLevel string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tocsin",
	Short: "Tocsin - named, payload-less signals between local processes",
	Long: `Tocsin lets processes on the same machine signal each other with named
events. Names are namespaced by a prefix so unrelated programs sharing a
notification facility do not collide.

Facilities:
  fs    - a shared directory watched for changes (default, no server needed)
  redis - Redis Pub/Sub channels
  dbus  - D-Bus session bus signals
  local - in-process only (useful for testing)`,
	Version: version,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	// Enable strict flag parsing - unknown flags will cause an error
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	// Silence Cobra's default error and usage printing
	// We print formatted colored errors directly in the printer package
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to the config file (optional)")
	flags.StringVarP(&flagPrefix, "prefix", "p", "", "Namespace prefix (env TOCSIN_PREFIX)")
	flags.StringVarP(&flagFacility, "facility", "f", "", "Notification facility: fs, redis, dbus or local (env TOCSIN_FACILITY)")
	flags.StringVar(&flagRedisURL, "redis-url", "", "Redis URL for the redis facility (env TOCSIN_REDIS_URL)")
	flags.StringVar(&flagFSDir, "dir", "", "Shared directory for the fs facility (env TOCSIN_FS_DIR)")
	flags.StringVar(&flagLogLevel, "log-level", "", "Log level: trace, debug, info, warn, error (env TOCSIN_LOG_LEVEL)")
}
