// File: internal/tools/lint.go
package tools

import (
	"context"
	"fmt"
	"path"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// SyntaxChecker parses generated JavaScript and TypeScript sources and
// reports parse errors before they are persisted. Other file types pass
// through unchecked.
type SyntaxChecker struct {
	enabled bool
}

func NewSyntaxChecker(enabled bool) *SyntaxChecker {
	return &SyntaxChecker{enabled: enabled}
}

// Check parses the content with the grammar matching the file extension and
// returns the location of the first syntax error, if any.
func (c *SyntaxChecker) Check(ctx context.Context, filePath, content string) error {
	if !c.enabled {
		return nil
	}

	var language *sitter.Language
	switch strings.ToLower(path.Ext(filePath)) {
	case ".js", ".jsx", ".mjs", ".cjs":
		language = javascript.GetLanguage()
	case ".ts", ".tsx":
		language = typescript.GetLanguage()
	default:
		return nil
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(language)

	tree, err := parser.ParseCtx(ctx, nil, []byte(content))
	if err != nil {
		return fmt.Errorf("parsing %s: %w", filePath, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if !root.HasError() {
		return nil
	}

	if errNode := firstErrorNode(root); errNode != nil {
		point := errNode.StartPoint()
		return fmt.Errorf("syntax error in %s at line %d, column %d", filePath, point.Row+1, point.Column+1)
	}
	return fmt.Errorf("syntax error in %s", filePath)
}

func firstErrorNode(node *sitter.Node) *sitter.Node {
	if node.IsError() || node.IsMissing() {
		return node
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		if found := firstErrorNode(node.Child(i)); found != nil {
			return found
		}
	}
	return nil
}
