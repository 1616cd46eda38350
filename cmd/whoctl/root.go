package main

import (
	"log/slog"
	"time"

	"github.com/couchcryptid/outbreak-data-etl/internal/config"
	"github.com/couchcryptid/outbreak-data-etl/internal/observability"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Version is set at build time.
var Version = "dev"

// settings are shared by every subcommand. Flags win over the environment
// variables the service reads.
type settings struct {
	v *viper.Viper
}

func (s settings) sourceURL() string           { return s.v.GetString("url") }
func (s settings) databaseURL() string         { return s.v.GetString("database_url") }
func (s settings) fetchTimeout() time.Duration { return s.v.GetDuration("timeout") }

func (s settings) logger() *slog.Logger {
	return observability.NewLogger(s.v.GetString("log_level"), s.v.GetString("log_format"))
}

func getRootCmd() *cobra.Command {
	cmd, _ := newRootCmd()
	return cmd
}

func newRootCmd() (*cobra.Command, settings) {
	v := viper.New()
	s := settings{v: v}

	root := &cobra.Command{
		Use:   "whoctl",
		Short: "Operate the WHO outbreak data pipeline",
		Long: `whoctl works against the same source and durable cache as the
whoapi service.

Settings come from flags first, then from WHO_DATA_URL (or
NEXT_PUBLIC_WHO_DATA_URL), DATABASE_URL, FETCH_TIMEOUT, LOG_LEVEL and
LOG_FORMAT.`,
		Version:       Version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.SetVersionTemplate("{{.Version}}\n")

	pf := root.PersistentFlags()
	pf.String("url", config.DefaultSourceURL, "source workbook URL")
	pf.String("database-url", "", "durable cache DSN (postgres:// or sqlite://)")
	pf.Duration("timeout", 15*time.Second, "source fetch timeout")
	pf.String("log-level", "warn", "log level (debug, info, warn, error)")
	pf.String("log-format", "text", "log format (json, text)")

	bind(v, pf, "url", "url", "WHO_DATA_URL", "NEXT_PUBLIC_WHO_DATA_URL")
	bind(v, pf, "database-url", "database_url", "DATABASE_URL")
	bind(v, pf, "timeout", "timeout", "FETCH_TIMEOUT")
	bind(v, pf, "log-level", "log_level", "LOG_LEVEL")
	bind(v, pf, "log-format", "log_format", "LOG_FORMAT")

	root.AddCommand(
		getInspectCmd(s),
		getSyncCmd(s),
		getFallbackCmd(),
	)
	return root, s
}

// bind ties a flag and its environment variables to one viper key.
func bind(v *viper.Viper, fs *pflag.FlagSet, flag, key string, envs ...string) {
	_ = v.BindPFlag(key, fs.Lookup(flag))
	_ = v.BindEnv(append([]string{key}, envs...)...)
}
