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

// Package tsparse is the Tree-sitter backed AST parser for TypeScript
// and JavaScript workspaces. It implements the pipeline's Parser
// contract: pool workers parse bounded chunks with deferred cross-file
// references, and the coordinator merges symbol tables and resolves the
// deferred edges in a final pass.
package tsparse

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/kraklabs/codegraph/pkg/graph"
	"github.com/kraklabs/codegraph/pkg/pipeline"
)

// maxCodeTextBytes caps the source excerpt stored on a node.
const maxCodeTextBytes = 16 * 1024

// New returns a pipeline.ParserFactory that builds Tree-sitter parsers
// sharing the given pipeline config (globs, file size limits).
func New(cfg pipeline.Config, logger *slog.Logger) pipeline.ParserFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return func(opts pipeline.ParserOptions) (pipeline.Parser, error) {
		if opts.WorkspacePath == "" {
			return nil, fmt.Errorf("tsparse: workspace path is required")
		}
		return &TSParser{
			opts:   opts,
			cfg:    cfg,
			logger: logger,
			state:  newParseState(),
		}, nil
	}
}

// TSParser parses TypeScript, TSX, and JavaScript sources. An instance
// accumulates a symbol table as chunks are parsed; cross-chunk merging
// happens only on the coordinator instance.
type TSParser struct {
	opts   pipeline.ParserOptions
	cfg    pipeline.Config
	logger *slog.Logger

	mu    sync.Mutex
	state *parseState

	// decoratorFilter limits enhancement edges to framework-relevant
	// decorators. Nil means all decorators qualify.
	decoratorFilter map[string]bool
}

// parseState holds the per-run accumulation.
type parseState struct {
	// symbols maps an exported symbol name to its node ID.
	symbols map[string]string

	// nodes is every node this instance has seen, parsed or merged.
	nodes map[string]graph.CodeNode

	// deferred holds unresolved cross-file references.
	deferred []graph.DeferredEdge

	// decorations records decorator names applied per node ID, for the
	// enhancement pass.
	decorations map[string][]string
}

func newParseState() *parseState {
	return &parseState{
		symbols:     make(map[string]string),
		nodes:       make(map[string]graph.CodeNode),
		decorations: make(map[string][]string),
	}
}

// sharedContext is the serialised symbol-table increment for one chunk.
type sharedContext struct {
	Symbols     map[string]string   `json:"symbols"`
	Decorations map[string][]string `json:"decorations,omitempty"`
}

// ProjectID reports the project this instance is bound to.
func (p *TSParser) ProjectID() string { return p.opts.ProjectID }

// DiscoverSourceFiles enumerates parseable files under the workspace.
// Paths are workspace-relative with forward slashes, sorted.
func (p *TSParser) DiscoverSourceFiles(ctx context.Context) ([]string, error) {
	var files []string
	root := p.opts.WorkspacePath

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel != "." && p.excluded(rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if p.excluded(rel) || !p.included(rel) {
			return nil
		}
		if p.cfg.MaxFileSizeBytes > 0 {
			info, infoErr := d.Info()
			if infoErr != nil {
				return infoErr
			}
			if info.Size() > p.cfg.MaxFileSizeBytes {
				p.logger.Warn("parser.ts.discover.file_too_large",
					"path", rel,
					"size", info.Size(),
				)
				return nil
			}
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover source files: %w", err)
	}

	sort.Strings(files)
	p.logger.Debug("parser.ts.discover.complete", "files", len(files))
	return files, nil
}

func (p *TSParser) excluded(rel string) bool {
	for _, pattern := range p.cfg.ExcludeGlobs {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
		// Directory patterns like "dist/**" must also prune "dist/".
		if strings.HasSuffix(rel, "/") {
			if ok, _ := doublestar.Match(pattern, rel+"x"); ok {
				return true
			}
		}
	}
	return false
}

func (p *TSParser) included(rel string) bool {
	for _, pattern := range p.cfg.SourceGlobs {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// languageFor picks the grammar by file extension. Unsupported
// extensions return nil and the file is skipped.
func languageFor(rel string) *sitter.Language {
	switch filepath.Ext(rel) {
	case ".ts", ".mts", ".cts":
		return typescript.GetLanguage()
	case ".tsx":
		return tsx.GetLanguage()
	case ".js", ".jsx", ".mjs", ".cjs":
		return javascript.GetLanguage()
	default:
		return nil
	}
}

// ParseChunk parses a bounded file list. With skipDeferredResolution the
// parser emits symbolic DeferredEdges instead of resolving cross-file
// references in place.
func (p *TSParser) ParseChunk(ctx context.Context, files []string, skipDeferredResolution bool) (*pipeline.ChunkOutput, error) {
	out := &pipeline.ChunkOutput{}
	chunk := newParseState()

	for _, rel := range files {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lang := languageFor(rel)
		if lang == nil {
			continue
		}

		content, err := os.ReadFile(filepath.Join(p.opts.WorkspacePath, filepath.FromSlash(rel)))
		if err != nil {
			p.logger.Warn("parser.ts.chunk.read_failed", "path", rel, "error", err)
			continue
		}

		fileOut, err := p.parseFile(ctx, lang, content, rel)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", rel, err)
		}

		out.Nodes = append(out.Nodes, fileOut.nodes...)
		out.Edges = append(out.Edges, fileOut.edges...)
		out.FilesProcessed++

		for _, n := range fileOut.nodes {
			chunk.nodes[n.ID] = n
			if n.IsExported {
				chunk.symbols[n.Name] = n.ID
			}
		}
		for id, names := range fileOut.decorations {
			chunk.decorations[id] = names
		}

		// In-chunk references resolve immediately; the rest defer.
		for _, ref := range fileOut.refs {
			if targetID, ok := chunk.symbols[ref.TargetSymbol]; ok {
				out.Edges = append(out.Edges, concreteEdge(ref, targetID))
				continue
			}
			if skipDeferredResolution {
				out.DeferredEdges = append(out.DeferredEdges, ref)
			} else if targetID, ok := p.lookupSymbol(ref.TargetSymbol); ok {
				out.Edges = append(out.Edges, concreteEdge(ref, targetID))
			}
		}
	}

	serialised, err := json.Marshal(sharedContext{
		Symbols:     chunk.symbols,
		Decorations: chunk.decorations,
	})
	if err != nil {
		return nil, fmt.Errorf("serialise shared context: %w", err)
	}
	out.SharedContext = serialised

	// The instance keeps what it parsed so later chunks on the same
	// worker can resolve against it.
	p.mu.Lock()
	for id, n := range chunk.nodes {
		p.state.nodes[id] = n
	}
	for name, id := range chunk.symbols {
		p.state.symbols[name] = id
	}
	for id, names := range chunk.decorations {
		p.state.decorations[id] = names
	}
	p.mu.Unlock()

	p.logger.Debug("parser.ts.chunk.complete",
		"files", out.FilesProcessed,
		"nodes", len(out.Nodes),
		"edges", len(out.Edges),
		"deferred", len(out.DeferredEdges),
	)
	return out, nil
}

func (p *TSParser) lookupSymbol(name string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.state.symbols[name]
	return id, ok
}

func concreteEdge(ref graph.DeferredEdge, targetID string) graph.CodeEdge {
	return graph.CodeEdge{
		ID:               graph.GenerateEdgeID(ref.SourceNodeID, ref.RelationshipType, targetID),
		RelationshipType: ref.RelationshipType,
		Direction:        graph.DirectionOutgoing,
		SourceNodeID:     ref.SourceNodeID,
		TargetNodeID:     targetID,
		Properties:       ref.Properties,
		Confidence:       1.0,
		Source:           "ast",
	}
}

// AddParsedNodesFromChunk registers nodes parsed elsewhere so that
// deferred-edge resolution can see them.
func (p *TSParser) AddParsedNodesFromChunk(nodes []graph.CodeNode) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, n := range nodes {
		p.state.nodes[n.ID] = n
		if n.IsExported {
			p.state.symbols[n.Name] = n.ID
		}
	}
	return nil
}

// MergeSerializedSharedContext merges a chunk's symbol-table increment
// into this instance.
func (p *TSParser) MergeSerializedSharedContext(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	var sc sharedContext
	if err := json.Unmarshal(data, &sc); err != nil {
		return fmt.Errorf("merge shared context: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for name, id := range sc.Symbols {
		p.state.symbols[name] = id
	}
	for id, names := range sc.Decorations {
		p.state.decorations[id] = names
	}
	return nil
}

// MergeDeferredEdges registers unresolved edges from a chunk.
func (p *TSParser) MergeDeferredEdges(edges []graph.DeferredEdge) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.deferred = append(p.state.deferred, edges...)
	return nil
}

// ResolveDeferredEdges resolves all registered deferred edges against
// the merged node set and returns the concrete edges. Symbols that
// never resolve are dropped; they point outside the workspace.
func (p *TSParser) ResolveDeferredEdges(ctx context.Context) ([]graph.CodeEdge, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var edges []graph.CodeEdge
	unresolved := 0
	for _, ref := range p.state.deferred {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		targetID, ok := p.state.symbols[ref.TargetSymbol]
		if !ok {
			unresolved++
			continue
		}
		edges = append(edges, concreteEdge(ref, targetID))
	}

	p.logger.Debug("parser.ts.resolve.complete",
		"resolved", len(edges),
		"unresolved", unresolved,
	)
	return edges, nil
}

// ApplyEdgeEnhancements emits DECORATED_BY edges for decorators that
// resolve to workspace symbols. Framework schemas narrow which
// decorators qualify.
func (p *TSParser) ApplyEdgeEnhancements(ctx context.Context) ([]graph.CodeEdge, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids := make([]string, 0, len(p.state.decorations))
	for id := range p.state.decorations {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var edges []graph.CodeEdge
	for _, id := range ids {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		for _, name := range p.state.decorations[id] {
			if p.decoratorFilter != nil && !p.decoratorFilter[name] {
				continue
			}
			targetID, ok := p.state.symbols[name]
			if !ok {
				continue
			}
			edges = append(edges, graph.CodeEdge{
				ID:               graph.GenerateEdgeID(id, "DECORATED_BY", targetID),
				RelationshipType: "DECORATED_BY",
				Direction:        graph.DirectionOutgoing,
				SourceNodeID:     id,
				TargetNodeID:     targetID,
				Confidence:       0.9,
				Source:           "decorator",
			})
		}
	}
	return edges, nil
}

// frameworkDecorators lists the decorators each framework schema cares
// about. Unknown project types keep the nil filter (all decorators).
var frameworkDecorators = map[string][]string{
	"nestjs": {"Injectable", "Controller", "Module", "Inject", "Get", "Post", "Put", "Delete"},
	"react":  {},
}

// LoadFrameworkSchemasForType primes the parser with framework
// heuristics for the given project type.
func (p *TSParser) LoadFrameworkSchemasForType(projectType string) error {
	names, ok := frameworkDecorators[projectType]
	if !ok {
		return nil
	}
	filter := make(map[string]bool, len(names))
	for _, n := range names {
		filter[n] = true
	}
	p.mu.Lock()
	p.decoratorFilter = filter
	p.mu.Unlock()
	return nil
}

// ClearParsedData resets all per-run state.
func (p *TSParser) ClearParsedData() {
	p.mu.Lock()
	p.state = newParseState()
	p.mu.Unlock()
}
