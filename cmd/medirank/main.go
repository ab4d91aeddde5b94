// medirank is the retrieval-and-rank recommendation engine CLI: build the
// per-domain vector indexes, serve one-shot ranking requests, record
// selections, and fold feedback into the policy networks.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/carelink/medirank/internal/profile"
	"github.com/carelink/medirank/store"
	"github.com/carelink/medirank/store/db"
)

var version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "medirank",
	Short:   "Retrieval-and-rank recommendation engine for medical facilities and drugs",
	Version: version,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		setupLogger()
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("mode", "demo", `mode of the engine: "prod", "dev" or "demo"`)
	flags.String("data", ".", "directory holding index artifacts and the database")
	flags.String("driver", "sqlite", `database driver: "sqlite" or "postgres"`)
	flags.String("dsn", "", "database connection string")

	for _, name := range []string{"mode", "data", "driver", "dsn"} {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}
	viper.SetEnvPrefix("medirank")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(buildIndexCmd)
	rootCmd.AddCommand(rankCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(updatePolicyCmd)
}

func setupLogger() {
	level := slog.LevelInfo
	if viper.GetString("mode") != "prod" {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// loadProfile resolves the runtime profile from flags and environment.
func loadProfile() (*profile.Profile, error) {
	p := &profile.Profile{
		Mode:    viper.GetString("mode"),
		Data:    viper.GetString("data"),
		Driver:  viper.GetString("driver"),
		DSN:     viper.GetString("dsn"),
		Version: version,
	}
	p.FromEnv()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// openStore opens the database and runs migrations.
func openStore(cmd *cobra.Command, p *profile.Profile) (*store.Store, error) {
	driver, err := db.NewDBDriver(p)
	if err != nil {
		return nil, err
	}
	if err := driver.Migrate(cmd.Context()); err != nil {
		driver.Close()
		return nil, err
	}
	return store.New(driver, p), nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
