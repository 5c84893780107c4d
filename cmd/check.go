package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bimmerbailey/streamchat/internal/credential"
	"github.com/bimmerbailey/streamchat/internal/llm"
	"github.com/bimmerbailey/streamchat/internal/output"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the API key and, optionally, the connection to OpenAI",
	Long: `Show where the API key is read from and whether it looks valid. The key
itself is never printed, only its first and last characters. With --ping
the key is also used to list models and the configured model is checked.

Examples:
  streamchat check
  streamchat check --ping
  streamchat check --show-env-file
  streamchat check -f json`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().Bool("ping", false, "call the API to verify the key and model")
	checkCmd.Flags().Bool("show-env-file", false, "print the .env file with secrets masked")
	checkCmd.Flags().Duration("timeout", 15*time.Second, "timeout for --ping")

	rootCmd.AddCommand(checkCmd)
}

type checkResult struct {
	KeyEnv         string                 `json:"key_env"`
	Model          string                 `json:"model"`
	Diagnostics    credential.Diagnostics `json:"diagnostics"`
	Reachable      *bool                  `json:"reachable,omitempty"`
	ModelAvailable *bool                  `json:"model_available,omitempty"`
	PingError      string                 `json:"ping_error,omitempty"`
}

func runCheck(cmd *cobra.Command, args []string) error {
	ping, _ := cmd.Flags().GetBool("ping")
	showEnv, _ := cmd.Flags().GetBool("show-env-file")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	format := output.ParseFormat(viper.GetString("format"))

	a, err := loadApp()
	if err != nil {
		return err
	}

	keyEnv := a.cfg.LLM.KeyEnv()
	res := checkResult{
		KeyEnv:      keyEnv,
		Model:       a.cfg.LLM.Model,
		Diagnostics: a.resolver.Diagnose(keyEnv),
	}

	if ping && res.Diagnostics.Credential.Status == credential.StatusValid {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		a.ping(ctx, &res)
	}

	writer := output.New(cmd.OutOrStdout(), format)
	if err := writer.WriteFields(res, checkFields(res)); err != nil {
		return err
	}
	if showEnv && format == output.FormatText && res.Diagnostics.EnvFileMasked != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "\n--- %s (masked) ---\n%s", res.Diagnostics.EnvFile, res.Diagnostics.EnvFileMasked)
	}

	if res.Diagnostics.Credential.Status != credential.StatusValid {
		return fmt.Errorf("%s: %s", keyEnv, res.Diagnostics.Credential.Status)
	}
	if res.PingError != "" {
		return errors.New("ping failed")
	}
	return nil
}

func (a *app) ping(ctx context.Context, res *checkResult) {
	gw, err := a.openGateway()
	if err != nil {
		res.PingError = firstLine(llm.FormatError(err))
		return
	}

	err = gw.Heartbeat(ctx)
	reachable := err == nil
	res.Reachable = &reachable
	if err != nil {
		res.PingError = firstLine(llm.FormatError(err))
		return
	}

	ok, err := gw.ModelAvailable(ctx, a.cfg.LLM.Model)
	if err != nil {
		res.PingError = firstLine(llm.FormatError(err))
		return
	}
	res.ModelAvailable = &ok
}

// checkFields lays out the result for text output.
func checkFields(res checkResult) [][2]string {
	d := res.Diagnostics
	source := "not set"
	switch {
	case d.ProcessEnvSet:
		source = "environment"
	case d.Credential.Status != credential.StatusMissing:
		source = d.EnvFile
	}

	fields := [][2]string{
		{"Working directory", d.WorkDir},
		{"Env file", fmt.Sprintf("%s (exists: %s)", d.EnvFile, yesNo(d.EnvFileExists))},
		{"Key variable", res.KeyEnv},
		{"Key source", source},
		{"Key status", string(d.Credential.Status)},
	}
	if d.Credential.Preview != "" {
		fields = append(fields,
			[2]string{"Key preview", d.Credential.Preview},
			[2]string{"Key length", strconv.Itoa(d.Credential.Length)},
		)
	}
	if len(d.Credential.Problems) > 0 {
		fields = append(fields, [2]string{"Problems", strings.Join(d.Credential.Problems, "; ")})
	}
	if d.EnvFileError != "" {
		fields = append(fields, [2]string{"Env file error", d.EnvFileError})
	}
	fields = append(fields, [2]string{"Model", res.Model})
	if res.Reachable != nil {
		fields = append(fields, [2]string{"API reachable", yesNo(*res.Reachable)})
	}
	if res.ModelAvailable != nil {
		fields = append(fields, [2]string{"Model available", yesNo(*res.ModelAvailable)})
	}
	if res.PingError != "" {
		fields = append(fields, [2]string{"Ping error", res.PingError})
	}
	return fields
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
