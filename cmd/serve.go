package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bimmerbailey/streamchat/internal/session"
	"github.com/bimmerbailey/streamchat/internal/web"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the chat page in the browser",
	Long: `Start the web chat. Every browser gets its own conversation with a
sidebar for the model, the temperature, the system prompt and a reset
button. Conversations idle for longer than server.session_ttl (default 1h)
are dropped. The .env file is watched, so a fixed API key applies to the
next message without a restart.

Examples:
  streamchat serve
  streamchat serve --addr 127.0.0.1:8080
  streamchat serve --no-watch`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default :8501)")
	serveCmd.Flags().Bool("no-watch", false, "do not watch the .env file for changes")

	_ = viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	noWatch, _ := cmd.Flags().GetBool("no-watch")

	a, err := loadApp()
	if err != nil {
		return err
	}
	if !a.cfg.Verbose {
		gin.SetMode(gin.ReleaseMode)
	}

	store, err := session.NewStore(a.defaults(), a.logger)
	if err != nil {
		return err
	}
	srv, err := web.New(a.cfg, store, a.resolver, a.logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go store.Sweep(ctx, a.cfg.Server.SessionTTL)

	if a.cfg.Credential.Watch && !noWatch && a.resolver.EnvFile() != "" {
		go func() {
			if err := a.resolver.Watch(ctx); err != nil {
				a.logger.Warn("not watching env file", "file", a.resolver.EnvFile(), "error", err)
			}
		}()
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Serving streamchat on http://%s (model %s)\n", displayAddr(a.cfg.Server.Addr), a.cfg.LLM.Model)
	return srv.Run(ctx, a.cfg.Server.Addr)
}

// displayAddr turns ":8501" into "localhost:8501".
func displayAddr(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "localhost" + addr
	}
	return addr
}
