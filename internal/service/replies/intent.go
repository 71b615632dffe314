package replies

import (
	"strings"

	"github.com/mathemusician/church-volunteers/internal/model"
)

var vocabulary = map[string]model.Intent{
	"stop":        model.IntentStop,
	"stopall":     model.IntentStop,
	"unsubscribe": model.IntentStop,
	"quit":        model.IntentStop,
	"end":         model.IntentStop,
	"cancel":      model.IntentStop,

	"start":     model.IntentStart,
	"subscribe": model.IntentStart,
	"unstop":    model.IntentStart,

	"help": model.IntentHelp,
	"?":    model.IntentHelp,
	"info": model.IntentHelp,

	"status":  model.IntentStatus,
	"list":    model.IntentStatus,
	"signups": model.IntentStatus,
}

// Classify matches the whole trimmed text, case-insensitively. "stop please"
// is not a stop.
func Classify(text string) model.Intent {
	if in, ok := vocabulary[strings.ToLower(strings.TrimSpace(text))]; ok {
		return in
	}
	return model.IntentOther
}
