package candidate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/reposcout/errors"
)

func TestOwnerRepo(t *testing.T) {
	tests := []struct {
		name      string
		fullName  string
		wantOwner string
		wantRepo  string
		wantOK    bool
	}{
		{"valid", "psf/requests", "psf", "requests", true},
		{"no slash", "requests", "", "", false},
		{"too many parts", "a/b/c", "", "", false},
		{"empty owner", "/repo", "", "", false},
		{"empty repo", "owner/", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			owner, repo, ok := Candidate{FullName: tt.fullName}.OwnerRepo()
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantOwner, owner)
			assert.Equal(t, tt.wantRepo, repo)
		})
	}
}

func TestClone_IsIndependent(t *testing.T) {
	orig := Candidate{
		FullName:    "a/b",
		Topics:      []string{"ml"},
		RerankScore: Float(7),
		Activity:    &Activity{Score: 3},
		Quality:     &Quality{Score: 90},
	}
	cp := orig.Clone()
	cp.Topics[0] = "changed"
	*cp.RerankScore = 1
	cp.Activity.Score = 99
	cp.Quality.Score = 0

	assert.Equal(t, "ml", orig.Topics[0])
	assert.Equal(t, 7.0, *orig.RerankScore)
	assert.Equal(t, 3.0, orig.Activity.Score)
	assert.Equal(t, 90, orig.Quality.Score)
}

func TestCheckUnique(t *testing.T) {
	require.NoError(t, List{{FullName: "a/b"}, {FullName: "c/d"}}.CheckUnique())

	err := List{{FullName: "a/b"}, {FullName: "a/b"}}.CheckUnique()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvariant))
	assert.Contains(t, err.Error(), "a/b")
}

func TestCheckSubset(t *testing.T) {
	input := List{{FullName: "a/b"}, {FullName: "c/d"}}

	assert.NoError(t, List{{FullName: "c/d"}}.CheckSubset(input))
	assert.NoError(t, List{}.CheckSubset(input))

	err := List{{FullName: "x/y"}}.CheckSubset(input)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvariant))
}

func TestValue(t *testing.T) {
	assert.Equal(t, 0.0, Value(nil))
	assert.Equal(t, 2.5, Value(Float(2.5)))
}
