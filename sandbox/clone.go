package sandbox

import (
	"context"
	"os"
	"strconv"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/hashicorp/go-getter"

	"github.com/teranos/reposcout/errors"
)

// Cloner materialises a repository into dst, which must not exist yet.
type Cloner interface {
	Clone(ctx context.Context, url, dst string) error
}

// GitCloner performs a shallow clone with go-git.
type GitCloner struct {
	Depth           int
	InsecureSkipTLS bool // analyzed hosts may present unverifiable certificates
}

// Clone implements Cloner.
func (g GitCloner) Clone(ctx context.Context, url, dst string) error {
	if strings.TrimSpace(url) == "" {
		return errors.NewInvalidRequestError("empty clone URL")
	}
	depth := g.Depth
	if depth <= 0 {
		depth = 1
	}
	_, err := git.PlainCloneContext(ctx, dst, false, &git.CloneOptions{
		URL:             url,
		Depth:           depth,
		SingleBranch:    true,
		Tags:            git.NoTags,
		InsecureSkipTLS: g.InsecureSkipTLS,
	})
	if err != nil {
		return errors.Wrapf(err, "clone %s", url)
	}
	return nil
}

// GetterCloner fetches any go-getter source: git URLs, archives, local
// directories (copied, never symlinked into the workspace).
type GetterCloner struct {
	Depth int
}

// Clone implements Cloner.
func (g GetterCloner) Clone(ctx context.Context, url, dst string) error {
	if strings.TrimSpace(url) == "" {
		return errors.NewInvalidRequestError("empty clone URL")
	}
	pwd, err := os.Getwd()
	if err != nil {
		pwd = os.TempDir()
	}

	getters := make(map[string]getter.Getter, len(getter.Getters))
	for k, v := range getter.Getters {
		getters[k] = v
	}
	getters["file"] = &getter.FileGetter{Copy: true}

	client := &getter.Client{
		Ctx:     ctx,
		Src:     g.source(url),
		Dst:     dst,
		Pwd:     pwd,
		Mode:    getter.ClientModeDir,
		Getters: getters,
	}
	if err := client.Get(); err != nil {
		return errors.Wrapf(err, "fetch %s", url)
	}
	return nil
}

// source forces the git getter for .git URLs and asks for a shallow fetch.
func (g GetterCloner) source(url string) string {
	if !strings.HasSuffix(url, ".git") || strings.Contains(url, "::") {
		return url
	}
	depth := g.Depth
	if depth <= 0 {
		depth = 1
	}
	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	return "git::" + url + sep + "depth=" + strconv.Itoa(depth)
}
