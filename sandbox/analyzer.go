package sandbox

import (
	"bytes"
	"context"
	"io/fs"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"

	"github.com/teranos/reposcout/errors"
)

// Analyzer runs an external linter over a checkout.
type Analyzer struct {
	argv          []string
	maxLineLength int
}

// NewAnalyzer parses a shell-quoted command such as "python3 -m flake8".
func NewAnalyzer(command string, maxLineLength int) (*Analyzer, error) {
	argv, err := shellquote.Split(command)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid analyzer command %q", command)
	}
	if len(argv) == 0 {
		return nil, errors.NewInvalidRequestError("analyzer command is empty")
	}
	return &Analyzer{argv: argv, maxLineLength: maxLineLength}, nil
}

// Command returns the argv run for dir.
func (a *Analyzer) Command(dir string) []string {
	args := append([]string(nil), a.argv...)
	if a.maxLineLength > 0 {
		args = append(args, "--max-line-length="+strconv.Itoa(a.maxLineLength))
	}
	return append(args, dir)
}

// Run executes the analyzer and returns its diagnostics and their count.
// A non-zero exit with diagnostics is the normal "issues found" outcome;
// a non-zero exit with no diagnostics means the analyzer itself failed.
func (a *Analyzer) Run(ctx context.Context, dir string) (diagnostics string, count int, err error) {
	argv := a.Command(dir)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	// grandchildren holding the pipes must not outlive the deadline
	cmd.WaitDelay = 2 * time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if ctx.Err() != nil {
		return "", 0, errors.Wrap(errors.ErrTimeout, "analyzer did not finish: "+ctx.Err().Error())
	}

	output := strings.TrimSpace(stdout.String())
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) || output == "" {
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				msg = runErr.Error()
			}
			return "", 0, errors.Wrapf(errors.ErrToolFailed, "analyzer failed: %s", msg)
		}
	}

	return output, countLines(output), nil
}

// countLines counts the non-blank lines of diagnostics output.
func countLines(output string) int {
	n := 0
	for _, line := range strings.Split(output, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}

// CountFiles counts regular files under root whose name ends in ext.
func CountFiles(root, ext string) (int, error) {
	n := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && d.Name() == ".git" {
			return filepath.SkipDir
		}
		if d.Type().IsRegular() && strings.HasSuffix(d.Name(), ext) {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "failed to enumerate source files")
	}
	return n, nil
}
