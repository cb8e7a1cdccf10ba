package merge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/reposcout/candidate"
	"github.com/teranos/reposcout/pipeline"
)

func TestJoin(t *testing.T) {
	base := candidate.List{
		{FullName: "b/b", Quality: &candidate.Quality{Score: 70}},
		{FullName: "a/a"},
	}
	activity := candidate.List{
		{FullName: "a/a", Activity: &candidate.Activity{Score: 3}},
		{FullName: "b/b", Activity: &candidate.Activity{Score: 9}},
		{FullName: "dropped/by-deps", Activity: &candidate.Activity{Score: 100}},
	}

	out := Join(base, activity)
	require.Equal(t, []string{"b/b", "a/a"}, out.Names(), "membership and order follow the quality branch")
	assert.Equal(t, 9.0, out[0].Activity.Score)
	assert.Equal(t, 70, out[0].Quality.Score)
	assert.Equal(t, 3.0, out[1].Activity.Score)
	require.NotNil(t, out[1].Quality)
	assert.Zero(t, out[1].Quality.Score)

	assert.Nil(t, base[1].Quality, "base is not mutated")
	out[0].Activity.Score = -1
	assert.Equal(t, 9.0, activity[1].Activity.Score, "activity is copied, not aliased")
}

func TestStage(t *testing.T) {
	in := pipeline.NewInput("q", map[pipeline.Slot]candidate.List{
		pipeline.SlotQuality:  {{FullName: "a/a"}},
		pipeline.SlotActivity: {{FullName: "a/a", Activity: &candidate.Activity{PullRequests: 2}}},
	})
	out, err := New(nil).Stage(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, out.Candidates, 1)
	assert.Equal(t, 2, out.Candidates[0].Activity.PullRequests)
	assert.NoError(t, out.Candidates.CheckUnique())
}
