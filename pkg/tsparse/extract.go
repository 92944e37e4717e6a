// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package tsparse

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/kraklabs/codegraph/pkg/graph"
)

// =============================================================================
// ENTITY EXTRACTION
// =============================================================================

// fileOutput is what parsing one file yields. refs are symbolic
// references that may resolve inside the chunk or defer.
type fileOutput struct {
	nodes       []graph.CodeNode
	edges       []graph.CodeEdge
	refs        []graph.DeferredEdge
	decorations map[string][]string
}

// extractionCtx carries per-file walk state.
type extractionCtx struct {
	content []byte
	path    string
	out     *fileOutput

	// enclosingID is the node ID calls inside the current subtree are
	// attributed to. Empty at file scope.
	enclosingID string

	// classID is set while walking a class body so methods gain a
	// CONTAINS edge from their class.
	classID string
}

// parseFile extracts functions, classes, interfaces, type aliases, and
// call relationships from one source file.
func (p *TSParser) parseFile(ctx context.Context, lang *sitter.Language, content []byte, rel string) (*fileOutput, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		if n := countErrors(root); n > 0 {
			p.logger.Warn("parser.ts.syntax_errors", "path", rel, "error_count", n)
		}
	}

	out := &fileOutput{decorations: make(map[string][]string)}
	ec := &extractionCtx{content: content, path: rel, out: out}
	p.walk(root, ec)
	return out, nil
}

// walk visits one AST node and recurses. Declaration nodes register
// entities and adjust the attribution context for their subtree.
func (p *TSParser) walk(node *sitter.Node, ec *extractionCtx) {
	if node == nil {
		return
	}

	child := *ec // copied so sibling subtrees keep their own context

	switch node.Type() {
	case "function_declaration", "function_signature":
		if id, ok := p.registerFunction(node, ec); ok {
			child.enclosingID = id
		}

	case "variable_declarator":
		if id, ok := p.registerBoundFunction(node, ec); ok {
			child.enclosingID = id
		}

	case "method_definition", "method_signature":
		if id, ok := p.registerMethod(node, ec); ok {
			child.enclosingID = id
		}

	case "class_declaration":
		if id, ok := p.registerType(node, ec, "class"); ok {
			child.classID = id
			child.enclosingID = id
			p.registerHeritage(node, ec, id)
			p.registerDecorators(node, ec, id)
		}

	case "interface_declaration":
		p.registerType(node, ec, "interface")

	case "type_alias_declaration":
		p.registerType(node, ec, "type_alias")

	case "enum_declaration":
		p.registerType(node, ec, "enum")

	case "call_expression":
		p.registerCall(node, ec)
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		p.walk(node.Child(i), &child)
	}
}

// registerFunction handles function declarations and ambient signatures.
func (p *TSParser) registerFunction(node *sitter.Node, ec *extractionCtx) (string, bool) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return "", false
	}
	name := ec.text(nameNode)
	id := nodeID("func", ec.path, name, node)

	ec.out.nodes = append(ec.out.nodes, graph.CodeNode{
		ID:         id,
		Name:       name,
		CoreType:   "Function",
		FilePath:   ec.path,
		LineNumber: int(node.StartPoint().Row) + 1,
		SourceCode: ec.excerpt(node),
		IsExported: isExported(node),
	})
	return id, true
}

// registerBoundFunction handles `const foo = () => {}` and function
// expressions bound to a name. Other declarators are ignored.
func (p *TSParser) registerBoundFunction(node *sitter.Node, ec *extractionCtx) (string, bool) {
	nameNode := node.ChildByFieldName("name")
	valueNode := node.ChildByFieldName("value")
	if nameNode == nil || valueNode == nil {
		return "", false
	}
	switch valueNode.Type() {
	case "arrow_function", "function_expression", "function":
	default:
		return "", false
	}

	name := ec.text(nameNode)
	id := nodeID("func", ec.path, name, node)

	ec.out.nodes = append(ec.out.nodes, graph.CodeNode{
		ID:         id,
		Name:       name,
		CoreType:   "Function",
		FilePath:   ec.path,
		LineNumber: int(node.StartPoint().Row) + 1,
		SourceCode: ec.excerpt(node),
		IsExported: isExported(node),
	})
	return id, true
}

// registerMethod handles class methods and interface method signatures.
// Methods inside a class gain a CONTAINS edge from the class node.
func (p *TSParser) registerMethod(node *sitter.Node, ec *extractionCtx) (string, bool) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return "", false
	}
	name := ec.text(nameNode)
	id := nodeID("func", ec.path, name, node)

	visibility := "public"
	for i := 0; i < int(node.ChildCount()); i++ {
		if c := node.Child(i); c.Type() == "accessibility_modifier" {
			visibility = ec.text(c)
		}
	}

	ec.out.nodes = append(ec.out.nodes, graph.CodeNode{
		ID:           id,
		Name:         name,
		CoreType:     "Function",
		SemanticType: "method",
		FilePath:     ec.path,
		LineNumber:   int(node.StartPoint().Row) + 1,
		SourceCode:   ec.excerpt(node),
		Visibility:   visibility,
		IsExported:   visibility == "public",
	})

	if ec.classID != "" {
		ec.out.edges = append(ec.out.edges, graph.CodeEdge{
			ID:               graph.GenerateEdgeID(ec.classID, "CONTAINS", id),
			RelationshipType: "CONTAINS",
			Direction:        graph.DirectionOutgoing,
			SourceNodeID:     ec.classID,
			TargetNodeID:     id,
			Confidence:       1.0,
			Source:           "ast",
		})
	}
	return id, true
}

// registerType handles class, interface, type alias, and enum
// declarations.
func (p *TSParser) registerType(node *sitter.Node, ec *extractionCtx, kind string) (string, bool) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return "", false
	}
	name := ec.text(nameNode)
	id := nodeID("type", ec.path, name, node)

	ec.out.nodes = append(ec.out.nodes, graph.CodeNode{
		ID:           id,
		Name:         name,
		CoreType:     "Type",
		SemanticType: kind,
		FilePath:     ec.path,
		LineNumber:   int(node.StartPoint().Row) + 1,
		SourceCode:   ec.excerpt(node),
		IsExported:   isExported(node),
	})
	return id, true
}

// registerHeritage emits an EXTENDS reference for a class extends
// clause. The superclass may live in another file, so it defers.
func (p *TSParser) registerHeritage(node *sitter.Node, ec *extractionCtx, classID string) {
	heritage := childOfType(node, "class_heritage")
	if heritage == nil {
		return
	}
	clause := childOfType(heritage, "extends_clause")
	if clause == nil {
		clause = heritage
	}
	super := childOfType(clause, "identifier")
	if super == nil {
		return
	}
	ec.out.refs = append(ec.out.refs, graph.DeferredEdge{
		SourceNodeID:     classID,
		RelationshipType: "EXTENDS",
		TargetSymbol:     ec.text(super),
		FilePath:         ec.path,
	})
}

// registerDecorators records decorator names applied to a class for the
// enhancement pass.
func (p *TSParser) registerDecorators(node *sitter.Node, ec *extractionCtx, classID string) {
	collect := func(parent *sitter.Node) {
		if parent == nil {
			return
		}
		for i := 0; i < int(parent.ChildCount()); i++ {
			c := parent.Child(i)
			if c.Type() != "decorator" {
				continue
			}
			if name := decoratorName(c, ec.content); name != "" {
				ec.out.decorations[classID] = append(ec.out.decorations[classID], name)
			}
		}
	}
	collect(node)
	// Decorators on an exported class attach to the export statement.
	if parent := node.Parent(); parent != nil && parent.Type() == "export_statement" {
		collect(parent)
	}
}

// decoratorName extracts the identifier of `@Name` or `@Name(...)`.
func decoratorName(node *sitter.Node, content []byte) string {
	for i := 0; i < int(node.ChildCount()); i++ {
		c := node.Child(i)
		switch c.Type() {
		case "identifier":
			return string(content[c.StartByte():c.EndByte()])
		case "call_expression":
			if fn := c.ChildByFieldName("function"); fn != nil && fn.Type() == "identifier" {
				return string(content[fn.StartByte():fn.EndByte()])
			}
		}
	}
	return ""
}

// registerCall emits a CALLS reference from the enclosing function to
// an identifier callee. Member calls (obj.method) are skipped: without
// type information the receiver cannot be resolved reliably.
func (p *TSParser) registerCall(node *sitter.Node, ec *extractionCtx) {
	if ec.enclosingID == "" {
		return
	}
	fn := node.ChildByFieldName("function")
	if fn == nil || fn.Type() != "identifier" {
		return
	}
	callee := ec.text(fn)

	// A recursive call still gets a ref; it resolves in-chunk.
	for _, ref := range ec.out.refs {
		if ref.SourceNodeID == ec.enclosingID && ref.TargetSymbol == callee && ref.RelationshipType == "CALLS" {
			return
		}
	}
	ec.out.refs = append(ec.out.refs, graph.DeferredEdge{
		SourceNodeID:     ec.enclosingID,
		RelationshipType: "CALLS",
		TargetSymbol:     callee,
		FilePath:         ec.path,
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func (ec *extractionCtx) text(node *sitter.Node) string {
	return string(ec.content[node.StartByte():node.EndByte()])
}

// excerpt returns the node's source text capped at maxCodeTextBytes.
func (ec *extractionCtx) excerpt(node *sitter.Node) string {
	text := ec.text(node)
	if len(text) > maxCodeTextBytes {
		text = text[:maxCodeTextBytes]
	}
	return text
}

// isExported reports whether a declaration sits under an export
// statement.
func isExported(node *sitter.Node) bool {
	for parent := node.Parent(); parent != nil; parent = parent.Parent() {
		switch parent.Type() {
		case "export_statement":
			return true
		case "program":
			return false
		}
	}
	return false
}

// childOfType returns the first direct child with the given type.
func childOfType(node *sitter.Node, typ string) *sitter.Node {
	for i := 0; i < int(node.ChildCount()); i++ {
		if c := node.Child(i); c.Type() == typ {
			return c
		}
	}
	return nil
}

// countErrors counts ERROR nodes in a subtree.
func countErrors(node *sitter.Node) int {
	if node == nil {
		return 0
	}
	count := 0
	if node.Type() == "ERROR" {
		count++
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		count += countErrors(node.Child(i))
	}
	return count
}

// nodeID derives a deterministic node ID from the declaration's path,
// name, and full position range. The source text is excluded so IDs
// stay stable across extraction improvements.
func nodeID(kind, path, name string, node *sitter.Node) string {
	idStr := fmt.Sprintf("%s|%s|%d|%d|%d|%d",
		normalizePath(path), name,
		node.StartPoint().Row+1, node.EndPoint().Row+1,
		node.StartPoint().Column+1, node.EndPoint().Column+1,
	)
	sum := sha256.Sum256([]byte(idStr))
	return kind + ":" + hex.EncodeToString(sum[:])
}

// normalizePath keeps IDs identical across platforms.
func normalizePath(path string) string {
	path = strings.TrimPrefix(path, "./")
	return filepath.ToSlash(filepath.Clean(path))
}
