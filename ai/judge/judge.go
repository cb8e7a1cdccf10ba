// Package judge asks a chat model whether a dependency set can run on a
// hardware profile and reduces the answer to a yes/no verdict.
package judge

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/reposcout/ai/openrouter"
	"github.com/teranos/reposcout/am"
	"github.com/teranos/reposcout/logger"
	"github.com/teranos/reposcout/metrics"
)

// Chatter sends one prompt and returns the model's text.
type Chatter interface {
	Chat(ctx context.Context, req openrouter.ChatRequest) (*openrouter.ChatResponse, error)
}

// Judge issues compatibility judgments.
type Judge struct {
	chat        Chatter
	maxDeps     int
	affirmative string
	log         *zap.SugaredLogger
}

// New builds a Judge from the deps config section.
func New(cfg am.DepsConfig, chat Chatter, log *zap.SugaredLogger) *Judge {
	return &Judge{
		chat:        chat,
		maxDeps:     cfg.MaxPromptDeps,
		affirmative: strings.ToUpper(cfg.AffirmativeWord),
		log:         logger.OrNop(log),
	}
}

// Prompt renders the judgment question. At most max dependencies are
// listed; max <= 0 lists them all.
func Prompt(hardware string, deps []string, max int) string {
	if max > 0 && len(deps) > max {
		deps = deps[:max]
	}
	return fmt.Sprintf("Given the following dependency list, can this project run on %s? "+
		"Answer YES or NO and a short reason.\n\nDependencies:\n%s", hardware, strings.Join(deps, ", "))
}

// Verdict reports whether the first whitespace-delimited token of answer,
// upper-cased, equals affirmative. Trailing punctuation on the token counts
// against it: "YES," is not "YES".
func Verdict(answer, affirmative string) bool {
	fields := strings.Fields(answer)
	if len(fields) == 0 {
		return false
	}
	return strings.ToUpper(fields[0]) == strings.ToUpper(affirmative)
}

// Compatible asks the model. An error means no verdict was obtained and the
// caller should treat the candidate as incompatible.
func (j *Judge) Compatible(ctx context.Context, hardware string, deps []string) (bool, error) {
	resp, err := j.chat.Chat(ctx, openrouter.ChatRequest{UserPrompt: Prompt(hardware, deps, j.maxDeps)})
	if err != nil {
		metrics.Judgments.WithLabelValues("error").Inc()
		return false, err
	}
	yes := Verdict(resp.Content, j.affirmative)
	label := "no"
	if yes {
		label = "yes"
	}
	metrics.Judgments.WithLabelValues(label).Inc()
	j.log.Debugw("Compatibility verdict",
		"hardware", hardware,
		"verdict", label,
		"answer", resp.Content,
		logger.FieldCount, len(deps))
	return yes, nil
}
