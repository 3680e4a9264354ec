package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// YAMLImporter handles .yaml and .yml files.
type YAMLImporter struct{}

// CanHandle returns true for YAML file extensions.
func (y *YAMLImporter) CanHandle(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Import parses a YAML file into submissions.
// A document may be a sequence of mappings (one record each) or a single
// mapping. Multi-document YAML (separated by ---) is supported.
func (y *YAMLImporter) Import(ctx context.Context, path string) ([]RawRecord, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(string(data)) == "" {
		return nil, nil
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	var out []RawRecord
	docNum := 0

	for {
		var node yaml.Node
		err := decoder.Decode(&node)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid YAML in %s (document %d): %w", path, docNum+1, err)
		}
		docNum++

		if len(node.Content) == 0 {
			continue
		}
		root := node.Content[0]

		var items []*yaml.Node
		switch root.Kind {
		case yaml.SequenceNode:
			items = root.Content
		case yaml.MappingNode:
			items = []*yaml.Node{root}
		case yaml.ScalarNode:
			if root.Tag == "!!null" {
				continue
			}
			return nil, fmt.Errorf("%s (document %d): expected a mapping or sequence of mappings", path, docNum)
		default:
			return nil, fmt.Errorf("%s (document %d): expected a mapping or sequence of mappings", path, docNum)
		}

		for i, item := range items {
			if item.Kind != yaml.MappingNode {
				return nil, fmt.Errorf("%s line %d: expected a mapping", path, item.Line)
			}
			var obj map[string]interface{}
			if err := item.Decode(&obj); err != nil {
				return nil, fmt.Errorf("%s line %d: %w", path, item.Line, err)
			}
			out = append(out, RawRecord{
				Fields:        unwrapFields(obj),
				SourceFile:    absPath,
				SourceLine:    item.Line,
				SourceSection: fmt.Sprintf("document-%d[%d]", docNum, i),
			})
		}
	}

	return out, nil
}
