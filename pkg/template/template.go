// Package template renders node templates against input fields.
package template

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"text/template"
	"text/template/parse"
)

// Render expands tmpl with fields as the template data. Missing top-level
// fields render as empty.
func Render(tmpl string, fields map[string]any) (string, error) {
	t, err := parseTemplate(tmpl)
	if err != nil {
		return "", err
	}

	data := make(map[string]any, len(fields))
	maps.Copy(data, fields)
	for _, name := range fieldsOf(t) {
		if v, ok := data[name]; !ok || v == nil {
			data[name] = ""
		}
	}

	var sb strings.Builder
	if err := t.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}
	return sb.String(), nil
}

func parseTemplate(tmpl string) (*template.Template, error) {
	t, err := template.New("node").Option("missingkey=zero").Parse(tmpl)
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	return t, nil
}

// RenderOrFirstString renders tmpl, or when tmpl is blank returns the first
// string-valued field (by sorted key). nodeName is used in errors.
func RenderOrFirstString(tmpl string, fields map[string]any, nodeName string) (string, error) {
	if strings.TrimSpace(tmpl) != "" {
		out, err := Render(tmpl, fields)
		if err != nil {
			return "", fmt.Errorf("%s: %w", nodeName, err)
		}
		return out, nil
	}

	for _, key := range slices.Sorted(maps.Keys(fields)) {
		if s, ok := fields[key].(string); ok {
			return s, nil
		}
	}
	return "", fmt.Errorf("%s: template is empty and input has no string field", nodeName)
}

// Fields lists the top-level input fields tmpl references, sorted and
// de-duplicated.
func Fields(tmpl string) ([]string, error) {
	t, err := parseTemplate(tmpl)
	if err != nil {
		return nil, err
	}
	return fieldsOf(t), nil
}

func fieldsOf(t *template.Template) []string {
	seen := make(map[string]struct{})
	for _, tt := range t.Templates() {
		if tt.Tree != nil {
			collectFields(tt.Tree.Root, seen)
		}
	}
	return slices.Sorted(maps.Keys(seen))
}

func collectFields(n parse.Node, seen map[string]struct{}) {
	switch n := n.(type) {
	case nil:
	case *parse.ListNode:
		if n == nil {
			return
		}
		for _, child := range n.Nodes {
			collectFields(child, seen)
		}
	case *parse.ActionNode:
		collectFields(n.Pipe, seen)
	case *parse.PipeNode:
		if n == nil {
			return
		}
		for _, cmd := range n.Cmds {
			for _, arg := range cmd.Args {
				collectFields(arg, seen)
			}
		}
	case *parse.FieldNode:
		if len(n.Ident) > 0 {
			seen[n.Ident[0]] = struct{}{}
		}
	case *parse.VariableNode:
		// $.name reads from the root data.
		if len(n.Ident) > 1 && n.Ident[0] == "$" {
			seen[n.Ident[1]] = struct{}{}
		}
	case *parse.IfNode:
		collectBranch(&n.BranchNode, seen)
	case *parse.RangeNode:
		collectBranch(&n.BranchNode, seen)
	case *parse.WithNode:
		collectBranch(&n.BranchNode, seen)
	case *parse.TemplateNode:
		collectFields(n.Pipe, seen)
	}
}

func collectBranch(b *parse.BranchNode, seen map[string]struct{}) {
	collectFields(b.Pipe, seen)
	collectFields(b.List, seen)
	collectFields(b.ElseList, seen)
}
