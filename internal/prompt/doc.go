// Package prompt holds the conversation defaults and builds the message list
// sent to an [llm.Provider].
//
// # Message layout
//
// [Build] always returns exactly one leading system message followed by the
// transcript in order. The transcript itself never carries a system message;
// the instruction is injected at call time from the generation settings:
//
//	messages, err := prompt.Build(settings.SystemPrompt, transcript)
//	if err != nil {
//	    return err
//	}
//	// Pass messages directly to llm.Provider.ChatStream(ctx, messages, chatOpts)
//
// # Defaults
//
// [DefaultSystemPrompt], [DefaultTemperature] and the model set exported by
// package llm define a fresh conversation. [ResolveModel] picks the first
// supported model from a list of candidates, so an OPENAI_MODEL override
// naming an unknown model falls back quietly.
package prompt
