package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

var (
	serverURL    string
	cfgFile      string
	bearerToken  string
	outputFormat string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "vcctl",
	Short: "VeriChain certification CLI",
	Long: `vcctl is the command-line interface for a VeriChain server.

It uploads product images for classification, issues certifications for
the results and inspects the certification ledger.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.verichain")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.SetEnvPrefix("verichain")
		viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if serverURL == "" {
			serverURL = viper.GetString("server")
		}
		if serverURL == "" {
			serverURL = "http://localhost:5000"
		}
		if bearerToken == "" {
			bearerToken = viper.GetString("token")
		}
		return validateFormat(outputFormat)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.verichain/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "VeriChain server URL (default http://localhost:5000)")
	rootCmd.PersistentFlags().StringVar(&bearerToken, "token", "", "operator token sent as Bearer authorization")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "o", "text", "output format: text, json or yaml")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(certifyCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(versionCmd)
}
