package collab

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/reposcout/logger"
	"github.com/teranos/reposcout/pipeline"
)

// maxQueryTerms keeps search queries short; the search API matches all
// terms, so long queries return nothing.
const maxQueryTerms = 6

// RewriteQuery reduces a free-text request to search terms. Hardware
// phrases are removed first since they describe the machine, not the
// project.
func RewriteQuery(request string) string {
	stripped := request
	for _, re := range hardwarePatterns {
		stripped = re.ReplaceAllString(stripped, " ")
	}
	ts := terms(stripped)
	if len(ts) > maxQueryTerms {
		ts = ts[:maxQueryTerms]
	}
	return strings.Join(ts, " ")
}

var hardwarePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:nvidia\s+)?(?:geforce\s+)?(?:rtx|gtx)\s?-?\d{3,4}(?:\s?ti)?\b`),
	regexp.MustCompile(`(?i)\b(?:nvidia\s+)?(?:a100|h100|v100|t4|l4|a10g?)\b`),
	regexp.MustCompile(`(?i)\b(?:amd\s+)?radeon\s+\w+\b`),
	regexp.MustCompile(`(?i)\bapple\s+(?:silicon|m[1-4](?:\s(?:pro|max|ultra))?)\b|\bm[1-4]\s(?:pro|max|ultra|mac(?:book)?)\b`),
	regexp.MustCompile(`(?i)\bjetson\s+\w+\b`),
	regexp.MustCompile(`(?i)\braspberry\s+pi(?:\s?\d)?\b`),
	regexp.MustCompile(`(?i)\b\d{1,3}\s?gb\s+(?:of\s+)?(?:v?ram|memory|gpu)\b`),
	regexp.MustCompile(`(?i)\bcpu[\s-]only\b|\bno\s+gpu\b`),
}

// ExtractHardware returns the hardware phrases found in request, joined
// with ", ", or "" when the request names no hardware.
func ExtractHardware(request string) string {
	var found []string
	seen := make(map[string]struct{})
	for _, re := range hardwarePatterns {
		for _, m := range re.FindAllString(request, -1) {
			m = strings.Join(strings.Fields(m), " ")
			key := strings.ToLower(m)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			found = append(found, m)
		}
	}
	return strings.Join(found, ", ")
}

// QueryStage is the query-rewrite stage.
func QueryStage(log *zap.SugaredLogger) func(context.Context, pipeline.Input) (pipeline.Output, error) {
	log = logger.OrNop(log)
	return func(_ context.Context, in pipeline.Input) (pipeline.Output, error) {
		q := RewriteQuery(in.Request)
		if q == "" {
			q = strings.TrimSpace(in.Request)
		}
		log.Infow("Search query derived", "query", q)
		return pipeline.Output{Text: q}, nil
	}
}

// HardwareStage is the hardware-extract stage.
func HardwareStage(log *zap.SugaredLogger) func(context.Context, pipeline.Input) (pipeline.Output, error) {
	log = logger.OrNop(log)
	return func(_ context.Context, in pipeline.Input) (pipeline.Output, error) {
		hw := ExtractHardware(in.Request)
		log.Infow("Hardware profile extracted", "hardware", hw)
		return pipeline.Output{Text: hw}, nil
	}
}
