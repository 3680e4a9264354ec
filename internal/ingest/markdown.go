package ingest

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hurttlocker/problemsift/internal/store"
)

// MarkdownImporter handles .md and .markdown files. Each file is one
// submission: YAML front matter carries the fields, the first h1 becomes
// problem_title and the remaining body becomes problem_statement, unless
// the front matter already sets them.
type MarkdownImporter struct{}

// CanHandle returns true for Markdown file extensions.
func (m *MarkdownImporter) CanHandle(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".md" || ext == ".markdown"
}

// Import parses a Markdown submission.
func (m *MarkdownImporter) Import(ctx context.Context, path string) ([]RawRecord, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	content := string(data)
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	fields, body, err := stripFrontMatter(content)
	if err != nil {
		return nil, fmt.Errorf("front matter in %s: %w", path, err)
	}

	title, statement := splitTitle(body)
	if _, ok := fields["problem_title"]; !ok && title != "" {
		fields["problem_title"] = title
	}
	if _, ok := fields["problem_statement"]; !ok && statement != "" {
		fields["problem_statement"] = statement
	}
	if len(fields) == 0 {
		return nil, nil
	}

	return []RawRecord{{
		Fields:     fields,
		SourceFile: absPath,
		SourceLine: 1,
	}}, nil
}

// stripFrontMatter removes YAML front matter (--- delimited) from content.
// Returns the decoded fields and remaining body.
func stripFrontMatter(content string) (store.Fields, string, error) {
	fields := make(store.Fields)
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "---") {
		return fields, content, nil
	}

	// Find the closing ---
	rest := trimmed[3:] // skip opening ---
	idx := strings.Index(rest, "\n---")
	if idx < 0 {
		return fields, content, nil
	}

	fm := rest[:idx]
	body := rest[idx+4:] // skip \n---

	var decoded map[string]interface{}
	if err := yaml.Unmarshal([]byte(fm), &decoded); err != nil {
		return nil, "", err
	}
	for k, v := range decoded {
		fields[k] = v
	}
	return fields, body, nil
}

// headerRe matches a level 1 markdown header.
var headerRe = regexp.MustCompile(`^#\s+(.+)`)

// splitTitle returns the first h1 text and the body without it.
func splitTitle(body string) (title, rest string) {
	scanner := bufio.NewScanner(strings.NewReader(body))
	var lines []string
	for scanner.Scan() {
		line := scanner.Text()
		if title == "" {
			if m := headerRe.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
				title = strings.TrimSpace(m[1])
				continue
			}
		}
		lines = append(lines, line)
	}
	return title, strings.TrimSpace(strings.Join(lines, "\n"))
}
