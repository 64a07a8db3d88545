package portfolio

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var (
	ErrInvalidPath      = errors.New("invalid path")
	ErrUnknownField     = errors.New("unknown field")
	ErrNotAnArray       = errors.New("not an array")
	ErrIndexOutOfBounds = errors.New("out of bounds")
	ErrInvalidValue     = errors.New("value does not match the document schema")
)

// ParsePath splits a dot path such as "projects.0.name".
func ParsePath(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	segs := strings.Split(raw, ".")
	for _, s := range segs {
		if s == "" {
			return nil, fmt.Errorf("%w: %q has an empty segment", ErrInvalidPath, raw)
		}
	}
	return segs, nil
}

func isIndex(seg string) bool {
	if seg == "" {
		return false
	}
	for _, r := range seg {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Tree returns the generic JSON form of doc: objects are map[string]any,
// arrays []any, numbers json.Number.
func Tree(doc Document) (map[string]any, error) {
	data, err := json.Marshal(doc.normalized())
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var tree map[string]any
	if err := dec.Decode(&tree); err != nil {
		return nil, err
	}
	return tree, nil
}

// FromTree decodes a generic tree back into a Document, rejecting keys the
// schema does not define and values of the wrong type.
func FromTree(tree map[string]any) (Document, error) {
	data, err := json.Marshal(tree)
	if err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		if strings.Contains(err.Error(), "unknown field") {
			return Document{}, fmt.Errorf("%w: %v", ErrUnknownField, err)
		}
		return Document{}, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return Document{}, fmt.Errorf("%w: trailing data", ErrInvalidValue)
	}
	return doc.normalized(), nil
}

// Lookup returns the value at path.
func Lookup(tree any, path []string) (any, error) {
	cur := tree
	for i, seg := range path {
		next, err := child(cur, seg, path[:i+1])
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

// SetPath returns a copy of tree with the value at path replaced. Containers
// along the path are copied; everything else is shared with the input.
func SetPath(tree any, path []string, value any) (any, error) {
	if len(path) == 0 {
		return value, nil
	}
	seg, rest := path[0], path[1:]
	switch node := tree.(type) {
	case map[string]any:
		cur, ok := node[seg]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownField, seg)
		}
		replaced, err := SetPath(cur, rest, value)
		if err != nil {
			return nil, err
		}
		out := make(map[string]any, len(node))
		for k, v := range node {
			out[k] = v
		}
		out[seg] = replaced
		return out, nil
	case []any:
		idx, err := index(seg, len(node))
		if err != nil {
			return nil, err
		}
		replaced, err := SetPath(node[idx], rest, value)
		if err != nil {
			return nil, err
		}
		out := make([]any, len(node))
		copy(out, node)
		out[idx] = replaced
		return out, nil
	default:
		return nil, fmt.Errorf("%w: cannot descend into %q", ErrInvalidPath, seg)
	}
}

func child(node any, seg string, at []string) (any, error) {
	switch n := node.(type) {
	case map[string]any:
		v, ok := n[seg]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownField, strings.Join(at, "."))
		}
		return v, nil
	case []any:
		idx, err := index(seg, len(n))
		if err != nil {
			return nil, err
		}
		return n[idx], nil
	default:
		return nil, fmt.Errorf("%w: cannot descend into %s", ErrInvalidPath, strings.Join(at, "."))
	}
}

func index(seg string, n int) (int, error) {
	if !isIndex(seg) {
		return 0, fmt.Errorf("%w: %q is not an array index", ErrInvalidPath, seg)
	}
	idx, err := strconv.Atoi(seg)
	if err != nil || idx >= n {
		return 0, fmt.Errorf("Index %s %w", seg, ErrIndexOutOfBounds)
	}
	return idx, nil
}
