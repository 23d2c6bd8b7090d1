// internal/commands/root.go
package coachrag

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/mwiater/coachrag/internal/appconfig"
	"github.com/mwiater/coachrag/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile       string
	configLoaded  bool
	currentConfig *appconfig.Config
	appVersion    = "dev"
	appCommit     = "none"
	appDate       = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "coachrag",
	Short: "coachrag: grounded management-coaching answers from your own document library",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureConfigLoaded(cmd.Flags().Changed("config")); err != nil {
			return err
		}

		if !cmd.Flags().Changed("debug") {
			_ = cmd.Flags().Set("debug", strconv.FormatBool(viper.GetBool("debug")))
		}

		var cfg appconfig.Config
		if err := viper.Unmarshal(&cfg); err != nil {
			return fmt.Errorf("unmarshal config: %w", err)
		}
		if configLoaded {
			cfg.ConfigPath = cfgFile
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		currentConfig = &cfg

		if err := logging.Init(currentConfig.LogFilePath()); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logging.SetDebug(currentConfig.Debug)

		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", appVersion, appCommit, appDate)

	defer logging.Close()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", appconfig.DefaultConfigPath, "config file (e.g., config/config.json)")

	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().String("logFile", "", "path to the log file")
	rootCmd.PersistentFlags().String("corpus", "", "directory holding the source documents")
	rootCmd.PersistentFlags().String("index", "", "index location: a directory, s3://bucket/prefix or a postgres:// URL")
	rootCmd.PersistentFlags().String("embedder", "", "embedding backend: openai or hash")

	bindFlags()
}

// bindFlags binds the persistent flags to their viper keys (flags override config).
func bindFlags() {
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("logFile", rootCmd.PersistentFlags().Lookup("logFile"))
	_ = viper.BindPFlag("corpusPath", rootCmd.PersistentFlags().Lookup("corpus"))
	_ = viper.BindPFlag("indexLocation", rootCmd.PersistentFlags().Lookup("index"))
	_ = viper.BindPFlag("embedder", rootCmd.PersistentFlags().Lookup("embedder"))
}

// initConfig points viper at the config file and the environment.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
	viper.SetEnvPrefix("COACHRAG")
	viper.AutomaticEnv()
	_ = viper.BindEnv("apiKey", "COACHRAG_APIKEY", "OPENAI_API_KEY")
	_ = viper.BindEnv("awsRegion", "COACHRAG_AWSREGION", "AWS_REGION")
	_ = viper.BindEnv("s3Bucket", "COACHRAG_S3BUCKET", "S3_BUCKET_NAME")
}

// ensureConfigLoaded reads .env and the config file on top of the defaults.
// A missing config file is only an error when it was named explicitly.
func ensureConfigLoaded(explicit bool) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	for key, value := range appconfig.DefaultValues() {
		viper.SetDefault(key, value)
	}

	configLoaded = false
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || (errors.Is(err, fs.ErrNotExist) && !explicit) {
			return nil
		}
		return fmt.Errorf("failed to load config: %w", err)
	}
	configLoaded = true
	return nil
}

// GetConfig returns the loaded application configuration for other packages.
func GetConfig() *appconfig.Config {
	return currentConfig
}

// DebugEnabled returns true if debug mode is enabled.
func DebugEnabled() bool { return viper.GetBool("debug") }

// SetVersionInfo allows the main package to inject build-time variables.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}
