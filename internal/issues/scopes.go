package issues

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/lintfix/lintfix/internal/types"
)

// extractScopes parses python source and returns the named scope ranges:
// functions, classes, and decorated definitions. The error covers parser
// failures and files with syntax errors; callers fall back to module-level
// grouping.
func extractScopes(ctx context.Context, content []byte) ([]types.Scope, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return nil, fmt.Errorf("tree-sitter returned no root node")
	}
	if root.HasError() {
		return nil, fmt.Errorf("source contains syntax errors")
	}

	var scopes []types.Scope
	collectScopes(root, content, &scopes)
	return scopes, nil
}

func collectScopes(node *sitter.Node, content []byte, scopes *[]types.Scope) {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "function_definition":
			*scopes = append(*scopes, scopeFrom(child, child, content, types.ScopeFunction))
			collectScopes(child, content, scopes)
		case "class_definition":
			*scopes = append(*scopes, scopeFrom(child, child, content, types.ScopeClass))
			collectScopes(child, content, scopes)
		case "decorated_definition":
			inner := innerDefinition(child)
			if inner == nil {
				continue
			}
			kind := types.ScopeFunction
			if inner.Type() == "class_definition" {
				kind = types.ScopeClass
			}
			// The range spans the decorators; linters point at them too.
			*scopes = append(*scopes, scopeFrom(child, inner, content, kind))
			collectScopes(inner, content, scopes)
		default:
			collectScopes(child, content, scopes)
		}
	}
}

// innerDefinition returns the definition node wrapped by a
// decorated_definition.
func innerDefinition(node *sitter.Node) *sitter.Node {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() == "function_definition" || child.Type() == "class_definition" {
			return child
		}
	}
	return nil
}

// scopeFrom builds a scope whose line range comes from span and whose name
// comes from def.
func scopeFrom(span, def *sitter.Node, content []byte, kind types.ScopeKind) types.Scope {
	var name string
	if n := def.ChildByFieldName("name"); n != nil {
		name = string(content[n.StartByte():n.EndByte()])
	}
	return types.Scope{
		Kind:      kind,
		Name:      name,
		StartLine: int(span.StartPoint().Row) + 1,
		EndLine:   int(span.EndPoint().Row) + 1,
	}
}
