/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "cellcomm",
	Short: "Serial transport for cellular modems",
	Long: `cellcomm drives a cellular modem's serial link through an
interrupt-driven session: open, send, receive and close.

Every command opens a session on --port (or on a simulated UART with --sim),
does its work and closes the session again.

Settings can also come from $HOME/.cellcomm.yaml or from CELLCOMM_*
environment variables, e.g. CELLCOMM_PORT=/dev/ttyACM0.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.cellcomm.yaml)")
	rootCmd.PersistentFlags().StringP("port", "p", "/dev/ttyACM0", "Serial device path")
	rootCmd.PersistentFlags().Bool("sim", false, "Use a simulated modem instead of a serial device")
	rootCmd.PersistentFlags().IntP("baud", "b", 115200, "Baud rate")
	rootCmd.PersistentFlags().StringP("flow-control", "f", "rtscts", "Flow control: none, rtscts")
	rootCmd.PersistentFlags().Int("ring-capacity", 1600, "Receive ring buffer size in bytes")
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level: debug, info, warn, error")

	for _, name := range []string{"port", "sim", "baud", "flow-control", "ring-capacity", "log-level"} {
		viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".cellcomm")
	}

	viper.SetEnvPrefix("cellcomm")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// newLogger builds the stderr logger for --log-level
func newLogger() (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log-level"))); err != nil {
		return nil, fmt.Errorf("invalid log level %q", viper.GetString("log-level"))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})), nil
}
