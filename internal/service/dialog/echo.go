package dialog

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"ai-media-hub-service/internal/service/session"
)

// Echo is a local stand-in for the script engine: it greets, repeats what
// the caller said and hangs up when the caller says goodbye.
type Echo struct {
	Greeting   string
	IdlePrompt string
}

// NewEcho creates an Echo dialog with default prompts.
func NewEcho() *Echo {
	return &Echo{
		Greeting:   "Hello, how can I help you?",
		IdlePrompt: "Are you still there?",
	}
}

// ApplySession implements session.Dialog.
func (e *Echo) ApplySession(context.Context) (string, *session.Reply, error) {
	pause := true
	return uuid.NewString(), &session.Reply{VoiceMode: "tts", ReplyContent: e.Greeting, PauseOnSpeak: &pause}, nil
}

// AIReply implements session.Dialog.
func (e *Echo) AIReply(_ context.Context, req session.ReplyRequest) (*session.Reply, error) {
	pause := true
	switch {
	case req.IdleTime > 0:
		return &session.Reply{VoiceMode: "tts", ReplyContent: e.IdlePrompt, PauseOnSpeak: &pause}, nil
	case req.SpeechText == "":
		return nil, nil
	case isGoodbye(req.SpeechText):
		return &session.Reply{VoiceMode: "tts", ReplyContent: "Goodbye.", Hangup: 1}, nil
	default:
		return &session.Reply{
			VoiceMode:    "tts",
			ReplyContent: fmt.Sprintf("You said: %s", req.SpeechText),
			PauseOnSpeak: &pause,
		}, nil
	}
}

func isGoodbye(text string) bool {
	switch strings.ToLower(strings.Trim(text, " .!")) {
	case "bye", "goodbye":
		return true
	}
	return false
}
