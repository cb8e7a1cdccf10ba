package collab

import (
	"context"
	"fmt"
	"strings"

	"github.com/teranos/reposcout/am"
	"github.com/teranos/reposcout/candidate"
	"github.com/teranos/reposcout/pipeline"
)

const nameWidth = 40

// Present renders the ranked shortlist as a fixed-width plain-text table,
// headed by the request and hardware profile. At most topN rows are shown.
func Present(request, hardware string, ranked candidate.List, topN int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Request:  %s\n", request)
	if hardware == "" {
		hardware = "(any)"
	}
	fmt.Fprintf(&b, "Hardware: %s\n\n", hardware)

	if len(ranked) == 0 {
		b.WriteString("No repositories matched.\n")
		return b.String()
	}

	fmt.Fprintf(&b, "%3s  %-*s  %7s  %8s  %7s  %6s\n", "#", nameWidth, "REPOSITORY", "STARS", "ACTIVITY", "QUALITY", "SCORE")
	shown := ranked
	if topN > 0 && len(shown) > topN {
		shown = shown[:topN]
	}
	for i, c := range shown {
		activity, quality := "-", "-"
		if c.Activity != nil {
			activity = fmt.Sprintf("%.1f", c.Activity.Score)
		}
		if c.Quality != nil {
			quality = fmt.Sprintf("%d", c.Quality.Score)
		}
		fmt.Fprintf(&b, "%3d  %-*s  %7d  %8s  %7s  %6.3f\n",
			i+1, nameWidth, fit(c.FullName, nameWidth), c.Stars, activity, quality, candidate.Value(c.FinalScore))
	}
	if rest := len(ranked) - len(shown); rest > 0 {
		fmt.Fprintf(&b, "\n... and %d more\n", rest)
	}
	return b.String()
}

func fit(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-3]) + "..."
}

// PresentStage is the present stage.
func PresentStage(cfg am.RankConfig) func(context.Context, pipeline.Input) (pipeline.Output, error) {
	return func(_ context.Context, in pipeline.Input) (pipeline.Output, error) {
		return pipeline.Output{Text: Present(in.Request, in.Hardware, in.Collection(pipeline.SlotRanked), cfg.TopN)}, nil
	}
}
