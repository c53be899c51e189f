package persona

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadProfile reads a profile from a .json, .yaml or .yml file. An unreadable
// document yields an empty profile, which yields no chunks. Within a readable
// document every top-level section is decoded on its own: a section of the wrong
// shape is dropped and a field of the wrong shape is left blank, each with a WARN.
func LoadProfile(path string, logger *slog.Logger) Profile {
	doc, err := readDocument(path)
	if err != nil {
		logger.Warn("failed to load profile, continuing with an empty one", "path", path, "error", err)
		return Profile{}
	}
	var p Profile
	doc.decodeInto(&p, path, logger)
	return p
}

// LoadExamples reads conversation examples and personality traits with the same
// per-section tolerance as LoadProfile.
func LoadExamples(path string, logger *slog.Logger) ConversationExamples {
	doc, err := readDocument(path)
	if err != nil {
		logger.Warn("failed to load conversation examples, continuing without them", "path", path, "error", err)
		return ConversationExamples{}
	}
	var ex ConversationExamples
	doc.decodeInto(&ex, path, logger)
	return ex
}

// section decodes one top-level entry of a document into v.
type section struct {
	decode func(v any) error
}

type document map[string]section

func readDocument(path string) (document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	doc := document{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var top map[string]yaml.Node
		if err := yaml.Unmarshal(data, &top); err != nil {
			return nil, fmt.Errorf("decode yaml %s: %w", path, err)
		}
		for key, node := range top {
			doc[key] = section{decode: node.Decode}
		}
	default:
		var top map[string]json.RawMessage
		if err := json.Unmarshal(data, &top); err != nil {
			return nil, fmt.Errorf("decode json %s: %w", path, err)
		}
		for key, raw := range top {
			doc[key] = section{decode: func(v any) error { return json.Unmarshal(raw, v) }}
		}
	}
	return doc, nil
}

// decodeInto fills the fields of the struct pointed to by dst from the matching
// document sections.
func (d document) decodeInto(dst any, path string, logger *slog.Logger) {
	rv := reflect.ValueOf(dst).Elem()
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		name := fieldName(rt.Field(i))
		sec, ok := d[name]
		if !ok {
			continue
		}
		target := reflect.New(rt.Field(i).Type)
		if err := sec.decode(target.Interface()); err != nil {
			logger.Warn("dropping malformed section", "path", path, "section", name, "error", err)
			continue
		}
		rv.Field(i).Set(target.Elem())

		var generic any
		if err := sec.decode(&generic); err == nil {
			for _, issue := range shapeIssues(rt.Field(i).Type, generic, name) {
				logger.Warn("ignoring malformed field", "path", path, "field", issue)
			}
		}
	}
}

func fieldName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "" {
		return f.Name
	}
	return name
}

var (
	valueType = reflect.TypeOf(Value(""))
	listType  = reflect.TypeOf(List(nil))
)

// shapeIssues names the fields of raw, a generic JSON or YAML tree, whose shape
// the tolerant decoders of t had to discard.
func shapeIssues(t reflect.Type, raw any, path string) []string {
	if raw == nil {
		return nil
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch {
	case t == valueType:
		if !isScalar(raw) {
			return []string{path}
		}
	case t == listType:
		items, ok := raw.([]any)
		if !ok {
			if !isScalar(raw) {
				return []string{path}
			}
			return nil
		}
		var issues []string
		for i, it := range items {
			if !isScalar(it) {
				issues = append(issues, fmt.Sprintf("%s[%d]", path, i))
			}
		}
		return issues
	case t.Kind() == reflect.Slice:
		items, ok := raw.([]any)
		if !ok {
			return nil
		}
		var issues []string
		for i, it := range items {
			issues = append(issues, shapeIssues(t.Elem(), it, fmt.Sprintf("%s[%d]", path, i))...)
		}
		return issues
	case t.Kind() == reflect.Struct:
		fields, ok := raw.(map[string]any)
		if !ok {
			return nil
		}
		var issues []string
		for i := 0; i < t.NumField(); i++ {
			name := fieldName(t.Field(i))
			if v, ok := fields[name]; ok {
				issues = append(issues, shapeIssues(t.Field(i).Type, v, path+"."+name)...)
			}
		}
		return issues
	}
	return nil
}

func isScalar(v any) bool {
	switch v.(type) {
	case map[string]any, map[any]any, []any:
		return false
	}
	return true
}
