package tools

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/haasonsaas/turnstream/internal/workspace"
	"github.com/haasonsaas/turnstream/pkg/models"
)

const (
	defaultMaxMatches = 200
	maxMatchLineBytes = 500
)

// skippedDirs are never descended into by the search.
var skippedDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
}

var errMatchLimit = errors.New("match limit reached")

type searchArgs struct {
	Pattern    string `json:"pattern" jsonschema:"minLength=1,description=Regular expression (RE2 syntax) to search for."`
	Path       string `json:"path,omitempty" jsonschema:"description=Directory relative to the workspace root. Defaults to the root."`
	Include    string `json:"include,omitempty" jsonschema:"description=Glob applied to file names, e.g. *.go."`
	MaxMatches int    `json:"max_matches,omitempty" jsonschema:"minimum=0,description=Maximum number of matching lines to return."`
}

// SearchFileContentTool greps workspace files for a regular expression.
type SearchFileContentTool struct {
	resolver workspace.Resolver
	maxBytes int
	schema   json.RawMessage
}

// NewSearchFileContentTool creates a content search tool scoped to the workspace.
func NewSearchFileContentTool(cfg Config) *SearchFileContentTool {
	cfg = cfg.withDefaults()
	return &SearchFileContentTool{
		resolver: workspace.Resolver{Root: cfg.Workspace},
		maxBytes: cfg.MaxReadBytes,
		schema:   reflectSchema(&searchArgs{}),
	}
}

func (t *SearchFileContentTool) Name() string { return "search_file_content" }

func (t *SearchFileContentTool) Description() string {
	return "Search workspace files for lines matching a regular expression."
}

func (t *SearchFileContentTool) Schema() json.RawMessage { return t.schema }

// Execute walks the directory in lexical order and reports matching lines.
// Hidden entries, binary files, and files larger than the read limit are
// skipped.
func (t *SearchFileContentTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	var input searchArgs
	if err := json.Unmarshal(params, &input); err != nil {
		return errorResult(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	re, err := regexp.Compile(input.Pattern)
	if err != nil {
		return errorResult(fmt.Sprintf("invalid pattern: %v", err)), nil
	}
	if input.Include != "" {
		if _, err := filepath.Match(input.Include, "x"); err != nil {
			return errorResult(fmt.Sprintf("invalid include glob: %v", err)), nil
		}
	}
	dir := strings.TrimSpace(input.Path)
	if dir == "" {
		dir = "."
	}
	base, err := t.resolver.Resolve(dir)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	limit := input.MaxMatches
	if limit <= 0 || limit > defaultMaxMatches {
		limit = defaultMaxMatches
	}

	matches := make([]models.SearchMatch, 0)
	truncated := false
	walkErr := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == base {
				return err
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != base && (strings.HasPrefix(name, ".") || skippedDirs[name]) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || !d.Type().IsRegular() {
			return nil
		}
		if input.Include != "" {
			if ok, _ := filepath.Match(input.Include, name); !ok {
				return nil
			}
		}
		found, err := t.searchFile(path, re, limit-len(matches))
		matches = append(matches, found...)
		if errors.Is(err, errMatchLimit) {
			truncated = true
			return fs.SkipAll
		}
		return nil
	})
	if walkErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return errorResult(fmt.Sprintf("search: %v", walkErr)), nil
	}

	return jsonResult(models.FileSearchResult{
		Pattern:   input.Pattern,
		Path:      t.resolver.Rel(base),
		Matches:   matches,
		Truncated: truncated,
	}), nil
}

// searchFile returns up to remaining matches from one file. errMatchLimit
// reports that the file had more.
func (t *SearchFileContentTool) searchFile(path string, re *regexp.Regexp, remaining int) ([]models.SearchMatch, error) {
	info, err := os.Stat(path)
	if err != nil || info.Size() > int64(t.maxBytes) {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil || bytes.IndexByte(data, 0) >= 0 {
		return nil, nil
	}

	var out []models.SearchMatch
	rel := t.resolver.Rel(path)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), len(data)+1)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if !re.MatchString(text) {
			continue
		}
		if len(out) >= remaining {
			return out, errMatchLimit
		}
		if len(text) > maxMatchLineBytes {
			text = text[:maxMatchLineBytes]
		}
		out = append(out, models.SearchMatch{Path: rel, Line: line, Text: text})
	}
	return out, nil
}
