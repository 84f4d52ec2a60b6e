package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// Global flags
	cfgFile string
	logFile string
	verbose bool

	logger *zap.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "extntool",
	Short: "Inspect and craft extension chains of legacy SCION packets",
	Long: `extntool works on the extension chain carried between the common header
and the layer-4 payload of legacy SCION packets.

It dumps decoded chains from packet captures as JSON and crafts packets
with hand-assembled chains into a capture for replay or testing.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initConfig(); err != nil {
			return err
		}
		return initLogger()
	},
	SilenceUsage: true,
}

// Execute runs the root command and exits non-zero on error. This is
// called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default extntool.yaml in . or $HOME/.extntool)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "",
		"write logs to this file with rotation instead of stderr")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"debug logging")
}

func initConfig() error {
	viper.SetDefault("log.max-size-mb", 10)
	viper.SetDefault("log.max-backups", 3)
	viper.SetDefault("dump.overlay-port", 30041)
	viper.SetDefault("craft.out", "crafted.pcap")
	viper.SetDefault("craft.count", 1)
	viper.SetDefault("craft.l4", "tcp")
	viper.SetDefault("craft.overlay-port", 30041)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("extntool")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".extntool"))
		}
	}
	viper.SetEnvPrefix("EXTNTOOL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && cfgFile == "" {
			return nil // config file is optional unless named explicitly
		}
		return err
	}
	return nil
}

func initLogger() error {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	if logFile == "" {
		logFile = viper.GetString("log.file")
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var sink zapcore.WriteSyncer
	if logFile != "" {
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    viper.GetInt("log.max-size-mb"),
			MaxBackups: viper.GetInt("log.max-backups"),
		})
	} else {
		sink = zapcore.AddSync(os.Stderr)
	}

	logger = zap.New(zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), sink, level))
	return nil
}
