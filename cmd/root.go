package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/bimmerbailey/streamchat/internal/config"
	"github.com/bimmerbailey/streamchat/internal/credential"
	"github.com/bimmerbailey/streamchat/internal/llm"
	"github.com/bimmerbailey/streamchat/internal/prompt"
	"github.com/bimmerbailey/streamchat/internal/session"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "streamchat",
	Short: "Chat with an OpenAI model from the terminal or the browser",
	Long: `Streamchat is a small chat client for OpenAI chat models.

Replies stream in as they are generated. The API key is read from the
environment or from a local .env file, and problems with it are reported
with a masked preview and steps to fix them.

Examples:
  streamchat serve
  streamchat chat --model gpt-4o
  streamchat ask "What is 2+2?"
  streamchat check --ping`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is called by main.main(). It runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, describeError(err))
	}
	return err
}

// describeError shows gateway failures in their user-facing form.
func describeError(err error) string {
	var le *llm.Error
	if errors.As(err, &le) {
		return llm.FormatError(err)
	}
	return "Error: " + err.Error()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.streamchat.yaml)")
	rootCmd.PersistentFlags().StringP("format", "f", "text", "output format (text, json)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("env-file", config.DefaultEnvFile, "file to read the API key from when it is not in the environment")

	_ = viper.BindPFlag("format", rootCmd.PersistentFlags().Lookup("format"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("credential.env_file", rootCmd.PersistentFlags().Lookup("env-file"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error finding home directory:", err)
			os.Exit(1)
		}

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigName(".streamchat")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("STREAMCHAT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("format", "text")
	viper.SetDefault("verbose", false)
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("server.addr", config.DefaultAddr)
	viper.SetDefault("server.session_ttl", config.DefaultSessionTTL)
	viper.SetDefault("llm.model", llm.DefaultModel)
	viper.SetDefault("llm.temperature", llm.DefaultTemperature)
	viper.SetDefault("llm.system_prompt", "")
	viper.SetDefault("llm.openai.api_key_env", config.DefaultAPIKeyEnv)
	viper.SetDefault("credential.env_file", config.DefaultEnvFile)
	viper.SetDefault("credential.watch", true)

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

// app is what every command needs: the resolved configuration, a logger and
// the credential resolver.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	resolver *credential.Resolver
}

// loadApp builds the app from viper.
func loadApp() (*app, error) {
	cfg := &config.Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return newApp(cfg, newLogger(cfg))
}

// newApp resolves the model override and sets up the resolver. OPENAI_MODEL
// from the environment or the .env file wins over the configured model when
// it names a supported one.
func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	resolver, err := credential.NewResolver(cfg.Credential.EnvFile, logger)
	if err != nil {
		return nil, err
	}

	override := resolver.Lookup(config.DefaultModelEnv)
	cfg.LLM.Model = prompt.ResolveModel(override, cfg.LLM.Model)
	if override != "" && cfg.LLM.Model != strings.TrimSpace(override) {
		logger.Warn("ignoring unsupported model", "env", config.DefaultModelEnv, "model", override)
	}

	return &app{cfg: cfg, logger: logger, resolver: resolver}, nil
}

// newLogger writes text logs to stderr. Verbose output forces debug level.
func newLogger(cfg *config.Config) *slog.Logger {
	level := config.ParseLevel(cfg.LogLevel).Slog()
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// defaults are the settings a new conversation starts with.
func (a *app) defaults() session.Settings {
	s := session.Settings{
		Model:        a.cfg.LLM.Model,
		Temperature:  a.cfg.LLM.Temperature,
		SystemPrompt: a.cfg.LLM.SystemPrompt,
	}
	if strings.TrimSpace(s.SystemPrompt) == "" {
		s.SystemPrompt = prompt.DefaultSystemPrompt
	}
	return s
}

// openGateway resolves the credential and creates a gateway. It runs per
// turn so edits to the .env file apply to the next message.
func (a *app) openGateway() (llm.Provider, error) {
	return llm.NewProvider(a.cfg, a.resolver.Lookup(a.cfg.LLM.KeyEnv()), a.logger)
}
