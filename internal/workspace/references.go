package workspace

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/haasonsaas/turnstream/pkg/models"
)

// Reference is one @path token found in a message.
type Reference struct {
	Raw   string
	Path  string
	Start int
	End   int
}

// ParseReferences returns the @path references in message in order. An @
// counts only at the start of the message or after whitespace, so e-mail
// addresses are left alone. Spaces inside a path are escaped with a
// backslash.
func ParseReferences(message string) []Reference {
	var refs []Reference
	runes := []rune(message)
	for i := 0; i < len(runes); i++ {
		if runes[i] != '@' {
			continue
		}
		if i > 0 && !unicode.IsSpace(runes[i-1]) {
			continue
		}
		var b strings.Builder
		j := i + 1
		for j < len(runes) {
			r := runes[j]
			if r == '\\' && j+1 < len(runes) {
				b.WriteRune(runes[j+1])
				j += 2
				continue
			}
			if unicode.IsSpace(r) {
				break
			}
			b.WriteRune(r)
			j++
		}
		path := strings.TrimRight(b.String(), ",;:!?)'\"")
		path = strings.TrimSuffix(path, ".")
		if path == "" {
			continue
		}
		refs = append(refs, Reference{
			Raw:   string(runes[i:j]),
			Path:  path,
			Start: i,
			End:   j,
		})
		i = j - 1
	}
	return refs
}

// ProcessorConfig bounds how much content a message may pull in.
type ProcessorConfig struct {
	MaxFileBytes int64
	MaxFiles     int
}

// Processed is the outcome of expanding a message's references.
type Processed struct {
	Query string
	Files []models.FileReference
}

// Processor expands @path references against one workspace root.
type Processor struct {
	resolver     Resolver
	maxFileBytes int64
	maxFiles     int
}

// NewProcessor creates a processor rooted at root.
func NewProcessor(root string, cfg ProcessorConfig) *Processor {
	if cfg.MaxFileBytes <= 0 {
		cfg.MaxFileBytes = 200000
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = 20
	}
	return &Processor{
		resolver:     Resolver{Root: root},
		maxFileBytes: cfg.MaxFileBytes,
		maxFiles:     cfg.MaxFiles,
	}
}

type loadedFile struct {
	ref     models.FileReference
	content string
}

// Process reads every referenced file and returns the message followed by
// their contents. A message without references is returned unchanged with no
// files. Any unreadable reference fails the whole call.
func (p *Processor) Process(ctx context.Context, message string) (*Processed, error) {
	refs := ParseReferences(message)
	if len(refs) == 0 {
		return &Processed{Query: message}, nil
	}

	var loaded []loadedFile
	seen := make(map[string]bool)
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		paths, err := p.expand(ref.Path)
		if err != nil {
			return nil, fmt.Errorf("@%s: %w", ref.Path, err)
		}
		for _, abs := range paths {
			if seen[abs] {
				continue
			}
			if len(loaded) >= p.maxFiles {
				return nil, fmt.Errorf("too many referenced files (max %d)", p.maxFiles)
			}
			seen[abs] = true
			file, err := p.read(abs)
			if err != nil {
				return nil, fmt.Errorf("@%s: %w", ref.Path, err)
			}
			loaded = append(loaded, file)
		}
	}

	files := make([]models.FileReference, 0, len(loaded))
	var b strings.Builder
	b.WriteString(message)
	b.WriteString("\n--- Content from referenced files ---")
	for _, f := range loaded {
		files = append(files, f.ref)
		fmt.Fprintf(&b, "\nContent from @%s:\n%s\n", f.ref.Path, f.content)
	}
	b.WriteString("--- End of content ---")

	return &Processed{Query: b.String(), Files: files}, nil
}

// expand resolves a reference to files. Directories contribute their
// immediate non-hidden files; glob patterns are matched inside the root.
func (p *Processor) expand(path string) ([]string, error) {
	if strings.ContainsAny(path, "*?[") {
		pattern, err := p.resolver.Resolve(path)
		if err != nil {
			return nil, err
		}
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, err
		}
		var files []string
		for _, m := range matches {
			if info, err := os.Stat(m); err == nil && info.Mode().IsRegular() {
				files = append(files, m)
			}
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("no files match")
		}
		sort.Strings(files)
		return files, nil
	}

	abs, err := p.resolver.Resolve(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{abs}, nil
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		files = append(files, filepath.Join(abs, entry.Name()))
	}
	return files, nil
}

func (p *Processor) read(abs string) (loadedFile, error) {
	f, err := os.Open(abs)
	if err != nil {
		return loadedFile{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return loadedFile{}, err
	}
	data, err := io.ReadAll(io.LimitReader(f, p.maxFileBytes))
	if err != nil {
		return loadedFile{}, err
	}
	content := string(data)
	if info.Size() > p.maxFileBytes {
		content += fmt.Sprintf("\n[truncated: %d of %d bytes shown]", p.maxFileBytes, info.Size())
	}
	return loadedFile{
		ref:     models.FileReference{Path: p.resolver.Rel(abs), Size: info.Size()},
		content: content,
	}, nil
}
