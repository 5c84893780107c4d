package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/bimmerbailey/streamchat/internal/llm"
	"github.com/bimmerbailey/streamchat/internal/output"
	"github.com/bimmerbailey/streamchat/internal/prompt"
	"github.com/bimmerbailey/streamchat/internal/session"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a single question and print the answer",
	Long: `Send one question with the system prompt and print the reply.

By default the full reply is printed once it is complete. With --stream the
reply is printed as it is generated. JSON output includes the model and
token usage.

Examples:
  streamchat ask "What is 2+2?"
  streamchat ask --stream "Write a haiku about Go"
  streamchat ask --model gpt-4o --temperature 0 "Name three primes"
  streamchat ask -f json "What is the capital of France?"`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringP("model", "m", "", "model to use (default from config or OPENAI_MODEL)")
	askCmd.Flags().Float32P("temperature", "t", -1, "sampling temperature, 0.0 to 1.0")
	askCmd.Flags().String("system", "", "system prompt")
	askCmd.Flags().Int("max-tokens", 0, "maximum tokens in the reply (0 for the model default)")
	askCmd.Flags().BoolP("stream", "s", false, "print the reply as it is generated")

	rootCmd.AddCommand(askCmd)
}

// askResult is the JSON form of an answer.
type askResult struct {
	Question     string `json:"question"`
	Answer       string `json:"answer"`
	Model        string `json:"model"`
	TokensPrompt int    `json:"tokens_prompt,omitempty"`
	TokensTotal  int    `json:"tokens_total,omitempty"`
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := args[0]
	if strings.TrimSpace(question) == "" {
		return session.ErrEmptyMessage
	}
	stream, _ := cmd.Flags().GetBool("stream")
	maxTokens, _ := cmd.Flags().GetInt("max-tokens")
	format := output.ParseFormat(viper.GetString("format"))

	a, err := loadApp()
	if err != nil {
		return err
	}
	settings, err := settingsFromFlags(cmd, a.defaults())
	if err != nil {
		return err
	}

	gw, err := a.openGateway()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	messages, err := prompt.Build(settings.SystemPrompt, []llm.Message{{Role: llm.RoleUser, Content: question}})
	if err != nil {
		return err
	}
	opts := &llm.ChatOptions{
		Model:       settings.Model,
		Temperature: settings.Temperature,
		MaxTokens:   maxTokens,
	}

	if stream && format == output.FormatText {
		return streamAnswer(ctx, cmd.OutOrStdout(), gw, messages, opts)
	}

	resp, err := gw.Chat(ctx, messages, opts)
	if err != nil {
		return err
	}

	if format == output.FormatJSON {
		writer := output.New(cmd.OutOrStdout(), output.FormatJSON)
		return writer.WriteJSON(askResult{
			Question:     question,
			Answer:       resp.Content,
			Model:        resp.Model,
			TokensPrompt: resp.TokensPrompt,
			TokensTotal:  resp.TokensTotal,
		})
	}

	fmt.Fprintln(cmd.OutOrStdout(), resp.Content)
	if viper.GetBool("verbose") {
		fmt.Fprintf(cmd.ErrOrStderr(), "\nmodel: %s, tokens: %d prompt / %d total\n",
			resp.Model, resp.TokensPrompt, resp.TokensTotal)
	}
	return nil
}

// streamAnswer prints fragments as they arrive. A failure after some text
// was printed starts on a new line.
func streamAnswer(ctx context.Context, w io.Writer, gw llm.Provider, messages []llm.Message, opts *llm.ChatOptions) error {
	printed := false
	for fragment, err := range gw.ChatStream(ctx, messages, opts) {
		if err != nil {
			if printed {
				fmt.Fprintln(w)
			}
			return err
		}
		if _, err := io.WriteString(w, fragment); err != nil {
			return err
		}
		printed = true
	}
	_, err := fmt.Fprintln(w)
	return err
}
