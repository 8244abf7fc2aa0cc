// Package mandoc invokes the external mandoc renderer and normalizes its
// HTML output. The normalized output is the input to both the document
// parser and the content hash, so normalization must be deterministic.
package mandoc

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Result holds one rendered page. Warnings carries mandoc's stderr;
// non-empty warnings do not imply failure.
type Result struct {
	HTML     string
	Warnings string
}

type Renderer struct {
	Binary  string
	Timeout time.Duration
	// ManRoot anchors ".so man1/foo.1" include targets. Defaults to the
	// grandparent directory of the rendered file.
	ManRoot string
}

func NewRenderer(binary string) *Renderer {
	if binary == "" {
		binary = "mandoc"
	}
	return &Renderer{Binary: binary, Timeout: 30 * time.Second}
}

var (
	headTable = regexp.MustCompile(`(?s)<table class="head">.*?</table>\s*`)
	footTable = regexp.MustCompile(`(?s)<table class="foot">.*?</table>\s*`)
	manualDiv = regexp.MustCompile(`(?s)^<div class="manual-text">\s*`)
	manualEnd = regexp.MustCompile(`(?s)\s*</div>\s*$`)
	// preBlock matches <pre>...</pre> elements.
	preBlock = regexp.MustCompile(`(?s)<pre>(.*?)</pre>`)
	// breakTag matches a <br/> tag on its own line inside a <pre> block.
	breakTag = regexp.MustCompile(`\n<br/>\n`)
)

// Render runs mandoc on one source file and returns normalized HTML. A
// non-zero exit is a hard per-page failure; stderr on a successful run is
// returned as warnings.
func (r *Renderer) Render(ctx context.Context, path string) (Result, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	content, err := r.readSource(path, 0)
	if err != nil {
		return Result{}, err
	}

	// Always try mandoc first — its built-in tbl handling produces better
	// HTML than the external tbl(1) preprocessor. If mandoc hangs (some
	// complex tables cause this), fall back to tbl piping.
	var raw string
	var warnings string
	if needsTblPreprocessing(content) {
		tblCtx, tblCancel := context.WithTimeout(ctx, 10*time.Second)
		raw, warnings, err = r.runMandoc(tblCtx, content)
		tblCancel()
		if err != nil {
			raw, warnings, err = r.runWithTbl(ctx, content)
		}
	} else {
		raw, warnings, err = r.runMandoc(ctx, content)
	}
	if err != nil {
		return Result{}, err
	}

	return Result{HTML: Normalize(raw), Warnings: strings.TrimSpace(warnings)}, nil
}

// Normalize strips mandoc chrome (head/foot tables, manual-text wrapper)
// and cosmetic noise so that identical page content renders to identical
// bytes across mandoc invocations.
func Normalize(raw string) string {
	html := raw
	html = headTable.ReplaceAllString(html, "")
	html = footTable.ReplaceAllString(html, "")
	html = manualDiv.ReplaceAllString(html, "")
	html = manualEnd.ReplaceAllString(html, "")
	html = stripBreaksInPre(html)
	return strings.TrimSpace(html)
}

// needsTblPreprocessing reports whether a source contains tbl table
// directives (.TS/.TE). Some complex tables cause mandoc to hang.
func needsTblPreprocessing(content string) bool {
	return strings.Contains(content, "\n.TS\n") || strings.HasPrefix(content, ".TS\n")
}

func (r *Renderer) runMandoc(ctx context.Context, content string) (string, string, error) {
	cmd := exec.CommandContext(ctx, r.Binary, "-T", "html", "-O", "fragment")
	cmd.Stdin = strings.NewReader(content)
	cmd.WaitDelay = 5 * time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", "", fmt.Errorf("mandoc failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), stderr.String(), nil
}

func (r *Renderer) runWithTbl(ctx context.Context, content string) (string, string, error) {
	tbl := exec.CommandContext(ctx, "tbl")
	tbl.Stdin = strings.NewReader(content)
	tbl.WaitDelay = 5 * time.Second

	mandoc := exec.CommandContext(ctx, r.Binary, "-T", "html", "-O", "fragment")
	mandoc.WaitDelay = 5 * time.Second
	var stdout, stderr bytes.Buffer
	mandoc.Stdout = &stdout
	mandoc.Stderr = &stderr

	pipe, err := tbl.StdoutPipe()
	if err != nil {
		return "", "", fmt.Errorf("tbl stdout pipe: %w", err)
	}
	mandoc.Stdin = pipe

	if err := tbl.Start(); err != nil {
		return "", "", fmt.Errorf("start tbl: %w", err)
	}
	if err := mandoc.Start(); err != nil {
		_ = tbl.Process.Kill()
		return "", "", fmt.Errorf("start mandoc: %w", err)
	}

	if err := tbl.Wait(); err != nil {
		_ = mandoc.Process.Kill()
		return "", "", fmt.Errorf("tbl failed: %w", err)
	}
	if err := mandoc.Wait(); err != nil {
		return "", "", fmt.Errorf("mandoc failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	return stdout.String(), stderr.String(), nil
}

// stripBreaksInPre removes <br/> tags inside <pre> blocks. Mandoc inserts
// these where blank lines existed in the source, but inside <pre> the
// newlines are already preserved, so the <br/> causes double-spacing.
func stripBreaksInPre(html string) string {
	return preBlock.ReplaceAllStringFunc(html, func(match string) string {
		inner := preBlock.FindStringSubmatch(match)[1]
		return "<pre>" + breakTag.ReplaceAllString(inner, "\n") + "</pre>"
	})
}

const maxSoDepth = 3

// readSource reads a (possibly gzipped) manual source, chasing ".so"
// include directives so alias pages render the content they point at.
func (r *Renderer) readSource(path string, depth int) (string, error) {
	content, err := readMaybeGzipped(path)
	if err != nil {
		return "", err
	}

	target, ok := soTarget(content)
	if !ok {
		return content, nil
	}
	if depth >= maxSoDepth {
		return "", fmt.Errorf("so include chain too deep at %s", path)
	}

	root := r.ManRoot
	if root == "" {
		// man trees are laid out {root}/man{N}/{page}; the include target
		// is relative to {root}.
		root = filepath.Dir(filepath.Dir(path))
	}
	for _, candidate := range []string{
		filepath.Join(root, target),
		filepath.Join(root, target+".gz"),
	} {
		resolved, err := r.readSource(candidate, depth+1)
		if err == nil {
			return resolved, nil
		}
	}
	return "", fmt.Errorf("unresolvable so include %q in %s", target, path)
}

// soTarget checks for a leading ".so" include directive and returns its
// target path.
func soTarget(content string) (string, bool) {
	line, _, _ := strings.Cut(content, "\n")
	line = strings.TrimSpace(line)
	if target, ok := strings.CutPrefix(line, ".so "); ok {
		return strings.TrimSpace(target), true
	}
	return "", false
}
