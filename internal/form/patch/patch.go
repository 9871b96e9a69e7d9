// Package patch applies model-generated RFC6902 operations to question
// definitions, restricted to content-only paths so structural fields
// can never be rewritten through a patch.
package patch

import (
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/formweaver/formweaver/internal/form/model"
)

// Operation is one RFC6902 operation.
type Operation struct {
	Op    string `json:"op" jsonschema:"required,enum=add,enum=replace,enum=remove,description=The RFC6902 operation"`
	Path  string `json:"path" jsonschema:"required,description=JSON pointer into the question being edited"`
	Value any    `json:"value,omitempty" jsonschema:"description=The new value for add and replace"`
}

// contentPaths are the question fields a patch may touch. Structural
// fields (id, questionType) and the derived submission behavior are
// off-limits; indices match as wildcards.
var contentPaths = map[string]bool{
	"/title":                   true,
	"/description":             true,
	"/display/showTitle":       true,
	"/display/showDescription": true,
	"/display/inputType":       true,
	"/rules/required":          true,
	"/rules/minSelections":     true,
	"/rules/maxSelections":     true,
	"/rules/maxLength":         true,
	"/rules/pattern":           true,
	"/logic":                   true,
	"/logic/questionId":        true,
	"/logic/operator":          true,
	"/logic/value":             true,
	"/options":                 true,
	"/options/*":               true,
	"/options/-":               true,
	"/options/*/label":         true,
	"/scale":                   true,
	"/scale/min":               true,
	"/scale/max":               true,
	"/scale/minLabel":          true,
	"/scale/maxLabel":          true,
	"/statements":              true,
	"/statements/*":            true,
	"/statements/-":            true,
	"/fileLimit":               true,
	"/fileLimit/maxFiles":      true,
	"/fileLimit/maxSizeByte":   true,
}

// ValidateOps rejects any operation whose path is outside the content
// allowlist.
func ValidateOps(ops []Operation) error {
	for i, op := range ops {
		if !pathAllowed(op.Path) {
			return fmt.Errorf("operation %d: path %q is not an editable content path", i, op.Path)
		}
	}
	return nil
}

func pathAllowed(path string) bool {
	if contentPaths[path] {
		return true
	}
	// Replace numeric / append segments with wildcards and retry.
	segs := strings.Split(path, "/")
	for i, seg := range segs {
		if i == 0 || seg == "" {
			continue
		}
		if isIndexSegment(seg) {
			segs[i] = "*"
		}
	}
	return contentPaths[strings.Join(segs, "/")]
}

func isIndexSegment(seg string) bool {
	if seg == "-" {
		return true
	}
	for _, r := range seg {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(seg) > 0
}

// ApplyToQuestion applies content operations to a question and returns
// the patched copy. The caller is expected to run model.Repair on the
// result before persisting.
func ApplyToQuestion(q *model.Question, ops []Operation) (*model.Question, error) {
	if len(ops) == 0 {
		return q, nil
	}
	if err := ValidateOps(ops); err != nil {
		return nil, err
	}

	current, err := sonic.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("encode question: %w", err)
	}
	ops = fixOps(current, ops)

	rawOps, err := sonic.Marshal(ops)
	if err != nil {
		return nil, fmt.Errorf("encode operations: %w", err)
	}
	p, err := jsonpatch.DecodePatch(rawOps)
	if err != nil {
		return nil, fmt.Errorf("decode patch: %w", err)
	}
	patched, err := p.Apply(current)
	if err != nil {
		return nil, fmt.Errorf("apply patch: %w", err)
	}

	var out model.Question
	if err := sonic.Unmarshal(patched, &out); err != nil {
		return nil, fmt.Errorf("patched question is not well-formed: %w", err)
	}
	// Structural fields survive regardless of what the patch contained.
	out.ID = q.ID
	out.Type = q.Type
	return &out, nil
}

// fixOps downgrades replace to add when the target does not exist yet,
// so the model does not have to know which optional fields are set.
func fixOps(current []byte, ops []Operation) []Operation {
	var doc any
	if err := sonic.Unmarshal(current, &doc); err != nil {
		return ops
	}
	fixed := make([]Operation, 0, len(ops))
	for _, op := range ops {
		if op.Op == "replace" && !pathExists(doc, op.Path) {
			op.Op = "add"
		}
		fixed = append(fixed, op)
	}
	return fixed
}

func pathExists(doc any, path string) bool {
	if path == "" {
		return true
	}
	cur := doc
	for _, seg := range strings.Split(strings.TrimPrefix(path, "/"), "/") {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return false
			}
			cur = next
		case []any:
			if seg == "-" {
				return false
			}
			idx := 0
			for _, r := range seg {
				if r < '0' || r > '9' {
					return false
				}
				idx = idx*10 + int(r-'0')
			}
			if idx >= len(node) {
				return false
			}
			cur = node[idx]
		default:
			return false
		}
	}
	return cur != nil
}
