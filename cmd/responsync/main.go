// Command responsync runs and inspects the offline response queue.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "responsync",
	Short: "Offline-durable response queue for live sessions",
	Long: `responsync keeps a participant's answers safe while disconnected and
delivers them to the session API once connectivity returns.

Answers are captured in a local SQLite queue before any network I/O,
then drained by a background synchronizer that retries transient
failures and discards records whose owning session no longer exists.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("store", ".responsync/queue.db", "path to the local queue database")
	rootCmd.PersistentFlags().String("remote", "", "base URL of the session API")
	rootCmd.PersistentFlags().String("config", "", "config file (default responsync.yaml in the working directory)")

	cobra.OnInitialize(initConfig)

	_ = viper.BindPFlag("store", rootCmd.PersistentFlags().Lookup("store"))
	_ = viper.BindPFlag("remote", rootCmd.PersistentFlags().Lookup("remote"))

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(pendingCmd)
}

// initConfig layers the optional config file under the flags.
func initConfig() {
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("responsync")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("RESPONSYNC")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Warning: could not read config: %v\n", err)
		}
	}
}

// queueExists reports whether a local queue database is present at path.
// Inspection commands check this before store.Open, which would otherwise
// create the database as a side effect.
func queueExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
