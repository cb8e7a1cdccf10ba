package github

import (
	"bufio"
	"context"
	"path"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"golang.org/x/sync/errgroup"

	"github.com/teranos/reposcout/errors"
	"github.com/teranos/reposcout/logger"
)

// CollectDependencies fetches every configured manifest of owner/repo
// concurrently and returns the union of declared dependency names, in
// manifest order, without duplicates. Missing manifests contribute nothing.
func (c *Client) CollectDependencies(ctx context.Context, owner, repo string) []string {
	perManifest := make([][]string, len(c.manifests))

	// Fetch never fails; the group is only used to wait.
	var g errgroup.Group
	for i, manifest := range c.manifests {
		g.Go(func() error {
			content, found := c.Fetch(ctx, owner, repo, manifest)
			if !found {
				return nil
			}
			deps, err := ParseManifest(manifest, content)
			if err != nil {
				c.log.Debugw("Unparseable manifest",
					logger.FieldRepo, owner+"/"+repo,
					logger.FieldPath, manifest,
					logger.FieldError, err.Error())
			}
			perManifest[i] = deps
			return nil
		})
	}
	_ = g.Wait()

	var out []string
	seen := make(map[string]struct{})
	for _, deps := range perManifest {
		for _, d := range deps {
			key := strings.ToLower(d)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, d)
		}
	}
	return out
}

// ParseManifest dispatches on the manifest's file name.
func ParseManifest(name, content string) ([]string, error) {
	base := path.Base(name)
	switch {
	case base == "pyproject.toml":
		return ParsePyproject(content)
	case strings.HasPrefix(base, "requirements") && strings.HasSuffix(base, ".txt"):
		return ParseRequirements(content), nil
	default:
		return nil, errors.Newf("unsupported manifest %q", name)
	}
}

// ParseRequirements extracts package names from a pip requirements file.
// Comments, blank lines and option lines (-r, -e, --index-url) are skipped.
func ParseRequirements(content string) []string {
	var deps []string
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if i := strings.Index(line, " #"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
			continue
		}
		if name := dependencyName(line); name != "" {
			deps = append(deps, name)
		}
	}
	return deps
}

// pyproject is the subset of pyproject.toml that declares dependencies.
type pyproject struct {
	Project struct {
		Dependencies []string `toml:"dependencies"`
	} `toml:"project"`
	Tool struct {
		Poetry struct {
			Dependencies map[string]interface{} `toml:"dependencies"`
		} `toml:"poetry"`
	} `toml:"tool"`
}

// ParsePyproject reads PEP 621 and Poetry dependency tables. The python
// interpreter constraint is not a dependency and is skipped.
func ParsePyproject(content string) ([]string, error) {
	var doc pyproject
	if _, err := toml.Decode(content, &doc); err != nil {
		return nil, errors.Wrap(err, "failed to parse pyproject.toml")
	}

	var deps []string
	for _, spec := range doc.Project.Dependencies {
		if name := dependencyName(spec); name != "" {
			deps = append(deps, name)
		}
	}

	poetry := make([]string, 0, len(doc.Tool.Poetry.Dependencies))
	for name := range doc.Tool.Poetry.Dependencies {
		if strings.EqualFold(name, "python") {
			continue
		}
		poetry = append(poetry, name)
	}
	sort.Strings(poetry)
	return append(deps, poetry...), nil
}

// dependencyName strips extras, version specifiers and environment markers
// from a PEP 508 requirement ("requests[socks]>=2.28; python_version>'3.8'").
func dependencyName(spec string) string {
	spec = strings.TrimSpace(spec)
	if i := strings.Index(spec, "@"); i >= 0 {
		spec = spec[:i]
	}
	end := len(spec)
	for i, r := range spec {
		if !(r == '-' || r == '_' || r == '.' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			end = i
			break
		}
	}
	return strings.TrimSpace(spec[:end])
}
