package github

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequirements(t *testing.T) {
	content := `# core
requests>=2.28.0
numpy==1.26.*  # pinned
-r dev-requirements.txt
--index-url https://example.com/simple

torch[cuda]~=2.1 ; platform_system == "Linux"
my_pkg.sub
pkg @ https://example.com/pkg.whl
`
	assert.Equal(t, []string{"requests", "numpy", "torch", "my_pkg.sub", "pkg"}, ParseRequirements(content))
	assert.Empty(t, ParseRequirements("# nothing here\n\n"))
}

func TestParsePyproject(t *testing.T) {
	content := `
[project]
name = "demo"
dependencies = ["httpx>=0.24", "pydantic[email]"]

[tool.poetry.dependencies]
python = "^3.10"
transformers = "^4.30"
accelerate = { version = "^0.20", optional = true }
`
	deps, err := ParsePyproject(content)
	require.NoError(t, err)
	assert.Equal(t, []string{"httpx", "pydantic", "accelerate", "transformers"}, deps)

	_, err = ParsePyproject("[project\nbroken")
	assert.Error(t, err)
}

func TestParseManifest_Unsupported(t *testing.T) {
	_, err := ParseManifest("setup.py", "")
	assert.Error(t, err)

	deps, err := ParseManifest("requirements-dev.txt", "pytest\n")
	require.NoError(t, err)
	assert.Equal(t, []string{"pytest"}, deps)
}

func TestCollectDependencies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/o/r/contents/requirements.txt":
			fmt.Fprint(w, contentsBody("torch\nnumpy\n"))
		case "/repos/o/r/contents/pyproject.toml":
			fmt.Fprint(w, contentsBody("[project]\ndependencies = [\"Torch>=2\", \"scipy\"]\n"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c, _ := newTestClient(t, testConfig(srv.URL))
	deps := c.CollectDependencies(context.Background(), "o", "r")
	assert.Equal(t, []string{"torch", "numpy", "scipy"}, deps)
}

func TestCollectDependencies_NoManifests(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	c, _ := newTestClient(t, testConfig(srv.URL))
	assert.Empty(t, c.CollectDependencies(context.Background(), "o", "r"))
}

func TestCollectDependencies_CustomManifests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/repos/o/r/contents/requirements/base.txt" {
			fmt.Fprint(w, contentsBody("django\n"))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, testConfig(srv.URL), WithManifests([]string{"requirements/base.txt"}))
	// base.txt is not a recognised manifest name, so nothing is parsed
	assert.Empty(t, c.CollectDependencies(context.Background(), "o", "r"))
}
