package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hurttlocker/problemsift/internal/store"
)

// JSONImporter handles .json files.
type JSONImporter struct{}

// CanHandle returns true for JSON file extensions.
func (j *JSONImporter) CanHandle(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".json"
}

// Import parses a JSON file into submissions.
// - Array of objects: each element becomes one record.
// - Single object: the object is one record.
// An object with a "fields" key is unwrapped, so record-store dumps of the
// form [{"id": ..., "fields": {...}}] import directly.
func (j *JSONImporter) Import(ctx context.Context, path string) ([]RawRecord, error) {
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

	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid JSON in %s: %w", path, err)
	}

	switch v := raw.(type) {
	case []interface{}:
		var out []RawRecord
		for i, elem := range v {
			obj, ok := elem.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("%s [%d]: expected an object, got %T", path, i, elem)
			}
			out = append(out, RawRecord{
				Fields:        unwrapFields(obj),
				SourceFile:    absPath,
				SourceLine:    1,
				SourceSection: fmt.Sprintf("[%d]", i),
			})
		}
		return out, nil

	case map[string]interface{}:
		return []RawRecord{{
			Fields:     unwrapFields(v),
			SourceFile: absPath,
			SourceLine: 1,
		}}, nil

	default:
		return nil, fmt.Errorf("%s: expected an object or array of objects, got %T", path, raw)
	}
}

// unwrapFields returns obj["fields"] when it is an object, else obj.
func unwrapFields(obj map[string]interface{}) store.Fields {
	if inner, ok := obj["fields"].(map[string]interface{}); ok {
		return store.Fields(inner)
	}
	return store.Fields(obj)
}
