package devtools

import (
	"strconv"
	"strings"

	"github.com/hairizuanbinnoorazman/forum-autofill/browser"
)

// textRoles are leaf roles whose names are the visible text of their
// parent container.
var textRoles = map[string]bool{
	"StaticText":    true,
	"text":          true,
	"InlineTextBox": true,
}

// editableRoles collect the text of their StaticText descendants as their
// value when the snapshot gives them none.
var editableRoles = map[string]bool{
	"textbox":   true,
	"document":  true,
	"searchbox": true,
	"combobox":  true,
}

// ParseSnapshot turns take_snapshot text into nodes in document order.
// Lines look like
//
//	uid=1_5 textbox "Subject" value="Hello" required
//
// and nest by indentation. Lines without a uid are ignored.
func ParseSnapshot(text string) []browser.Node {
	type frame struct {
		depth int
		index int
	}
	var (
		nodes []browser.Node
		stack []frame
		texts = map[int][]string{}
	)

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimLeft(line, " \t")
		if !strings.HasPrefix(trimmed, "uid=") {
			continue
		}
		depth := len(line) - len(trimmed)
		node, ok := parseLine(trimmed)
		if !ok {
			continue
		}

		for len(stack) > 0 && stack[len(stack)-1].depth >= depth {
			stack = stack[:len(stack)-1]
		}

		if textRoles[node.Role] {
			for i := len(stack) - 1; i >= 0; i-- {
				parent := nodes[stack[i].index]
				if editableRoles[parent.Role] {
					texts[stack[i].index] = append(texts[stack[i].index], node.Name)
					break
				}
			}
		}

		nodes = append(nodes, node)
		stack = append(stack, frame{depth: depth, index: len(nodes) - 1})
	}

	for idx, parts := range texts {
		if nodes[idx].Value == "" {
			nodes[idx].Value = strings.Join(parts, "\n")
		}
	}
	return nodes
}

// parseLine reads `uid=<ref> <role> ["<name>"] [key="value" | key=value | flag]...`.
func parseLine(line string) (browser.Node, bool) {
	rest := strings.TrimPrefix(line, "uid=")
	ref, rest := nextField(rest)
	if ref == "" {
		return browser.Node{}, false
	}
	role, rest := nextField(rest)
	node := browser.Node{Ref: ref, Role: role}

	rest = strings.TrimLeft(rest, " ")
	if strings.HasPrefix(rest, `"`) {
		node.Name, rest = readQuoted(rest)
	}

	for {
		rest = strings.TrimLeft(rest, " ")
		if rest == "" {
			break
		}
		key, value := "", "true"
		i := strings.IndexAny(rest, "= ")
		switch {
		case i < 0:
			key, rest = rest, ""
		case rest[i] == ' ':
			key, rest = rest[:i], rest[i:]
		default:
			key, rest = rest[:i], rest[i+1:]
			if strings.HasPrefix(rest, `"`) {
				value, rest = readQuoted(rest)
			} else {
				value, rest = nextField(rest)
			}
		}
		if key == "" {
			continue
		}
		if node.Attrs == nil {
			node.Attrs = map[string]string{}
		}
		node.Attrs[key] = value
		if key == "value" {
			node.Value = value
		}
	}
	return node, true
}

func nextField(s string) (string, string) {
	s = strings.TrimLeft(s, " ")
	if i := strings.IndexByte(s, ' '); i >= 0 {
		return s[:i], s[i:]
	}
	return s, ""
}

// readQuoted consumes a double-quoted string starting at s[0]. Backslash
// escapes are honoured. An unterminated string takes the rest of the line.
func readQuoted(s string) (string, string) {
	escaped := false
	for i := 1; i < len(s); i++ {
		switch {
		case escaped:
			escaped = false
		case s[i] == '\\':
			escaped = true
		case s[i] == '"':
			raw := s[:i+1]
			if v, err := strconv.Unquote(raw); err == nil {
				return v, s[i+1:]
			}
			return s[1:i], s[i+1:]
		}
	}
	return s[1:], ""
}
