package markdown

import (
	"bytes"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/luzzle/internal/schema"
)

const delim = "---"

// Parse splits a leading YAML frontmatter block (between --- delimiters) from
// the Markdown note. Values are returned untyped; without a frontmatter block
// the whole content is the note.
func Parse(data []byte) (note string, fm map[string]any, err error) {
	trimmed := bytes.TrimLeft(data, "\n\r")
	first, rest, _ := bytes.Cut(trimmed, []byte("\n"))
	if !isDelim(first) {
		return string(data), map[string]any{}, nil
	}

	var block, after []byte
	for pos := 0; ; {
		line, next := rest[pos:], len(rest)
		end := bytes.IndexByte(line, '\n')
		if end >= 0 {
			line, next = line[:end], pos+end+1
		}
		if isDelim(line) {
			block, after = rest[:pos], rest[next:]
			break
		}
		if end < 0 {
			return "", nil, fmt.Errorf("markdown: frontmatter is not closed")
		}
		pos = next
	}
	note = strings.TrimLeft(string(after), "\n\r")

	var doc yaml.Node
	if err := yaml.Unmarshal(block, &doc); err != nil {
		return "", nil, fmt.Errorf("markdown: frontmatter: %w", err)
	}
	fm = map[string]any{}
	if len(doc.Content) == 0 {
		return note, fm, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return "", nil, fmt.Errorf("markdown: frontmatter is not a mapping")
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		fm[root.Content[i].Value] = nodeValue(root.Content[i+1])
	}
	return note, fm, nil
}

// isDelim reports whether line is a frontmatter delimiter line.
func isDelim(line []byte) bool {
	return string(bytes.TrimRight(line, " \t\r")) == delim
}

// nodeValue converts a YAML node to its plain frontmatter value. Timestamps
// stay strings.
func nodeValue(n *yaml.Node) any {
	switch n.Kind {
	case yaml.AliasNode:
		return nodeValue(n.Alias)
	case yaml.SequenceNode:
		out := make([]any, len(n.Content))
		for i, c := range n.Content {
			out[i] = nodeValue(c)
		}
		return out
	case yaml.MappingNode:
		out := make(map[string]any, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			out[n.Content[i].Value] = nodeValue(n.Content[i+1])
		}
		return out
	}
	switch n.ShortTag() {
	case "!!null":
		return nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err == nil {
			return b
		}
	case "!!int":
		var i int64
		if err := n.Decode(&i); err == nil {
			return i
		}
	case "!!float":
		var f float64
		if err := n.Decode(&f); err == nil {
			return f
		}
	}
	return n.Value
}

// Serialize renders a document canonically: frontmatter keys in schema field
// order, nil values omitted, arrays in flow style, then a blank line and the
// note. Keys unknown to the schema follow in sorted order.
func Serialize(doc *Document, s *schema.Schema) ([]byte, error) {
	mapping := &yaml.Node{Kind: yaml.MappingNode}
	add := func(key string) error {
		v, ok := doc.Frontmatter[key]
		if !ok || v == nil {
			return nil
		}
		n, err := valueNode(v)
		if err != nil {
			return fmt.Errorf("markdown: %s: %w", key, err)
		}
		mapping.Content = append(mapping.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, n)
		return nil
	}

	declared := make(map[string]struct{})
	if s != nil {
		for _, name := range s.Names() {
			declared[name] = struct{}{}
			if err := add(name); err != nil {
				return nil, err
			}
		}
	}
	var extra []string
	for k := range doc.Frontmatter {
		if _, ok := declared[k]; !ok {
			extra = append(extra, k)
		}
	}
	slices.Sort(extra)
	for _, k := range extra {
		if err := add(k); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	buf.WriteString(delim + "\n")
	if len(mapping.Content) > 0 {
		out, err := yaml.Marshal(mapping)
		if err != nil {
			return nil, fmt.Errorf("markdown: encode frontmatter: %w", err)
		}
		buf.Write(out)
	}
	buf.WriteString(delim + "\n")
	if doc.Note != "" {
		buf.WriteString("\n")
		buf.WriteString(doc.Note)
		if !strings.HasSuffix(doc.Note, "\n") {
			buf.WriteString("\n")
		}
	}
	return buf.Bytes(), nil
}

func valueNode(v any) (*yaml.Node, error) {
	switch t := v.(type) {
	case nil:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}, nil
	case string:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: t}, nil
	case bool:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(t)}, nil
	case int:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(t)}, nil
	case int64:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.FormatInt(t, 10)}, nil
	case float64:
		if t == math.Trunc(t) && !math.IsInf(t, 0) {
			return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: strconv.FormatFloat(t, 'f', 1, 64)}, nil
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: strconv.FormatFloat(t, 'g', -1, 64)}, nil
	case []any:
		seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq", Style: yaml.FlowStyle}
		for _, e := range t {
			n, err := valueNode(e)
			if err != nil {
				return nil, err
			}
			seq.Content = append(seq.Content, n)
		}
		return seq, nil
	case map[string]any:
		m := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			n, err := valueNode(t[k])
			if err != nil {
				return nil, err
			}
			m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}, n)
		}
		return m, nil
	}
	return nil, fmt.Errorf("unsupported value type %T", v)
}
