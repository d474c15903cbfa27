package chunk

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// CodeChunkerOptions configures the code chunker behavior
type CodeChunkerOptions struct {
	MaxChunkChars int // Split a node/span larger than this (default: DefaultMaxChunkChars)
	MinChunkChars int // Merge adjacent siblings smaller than this (default: MinChunkChars)
}

// CodeChunker implements AST-aware code chunking using tree-sitter
type CodeChunker struct {
	parser    *Parser
	extractor *SymbolExtractor
	registry  *LanguageRegistry
	options   CodeChunkerOptions

	warnedMu sync.Mutex
	warned   map[string]bool // languages already warned about a grammar/parse failure this run
}

// NewCodeChunker creates a new code chunker with default options
func NewCodeChunker() *CodeChunker {
	return NewCodeChunkerWithOptions(CodeChunkerOptions{})
}

// NewCodeChunkerWithOptions creates a new code chunker with custom options
func NewCodeChunkerWithOptions(opts CodeChunkerOptions) *CodeChunker {
	if opts.MaxChunkChars == 0 {
		opts.MaxChunkChars = DefaultMaxChunkChars
	}
	if opts.MinChunkChars == 0 {
		opts.MinChunkChars = MinChunkChars
	}

	registry := DefaultRegistry()
	return &CodeChunker{
		parser:    NewParserWithRegistry(registry),
		extractor: NewSymbolExtractorWithRegistry(registry),
		registry:  registry,
		options:   opts,
		warned:    make(map[string]bool),
	}
}

// Close releases chunker resources
func (c *CodeChunker) Close() {
	if c.parser != nil {
		c.parser.Close()
	}
}

// SupportedExtensions returns file extensions this chunker handles
func (c *CodeChunker) SupportedExtensions() []string {
	return c.registry.SupportedExtensions()
}

func (c *CodeChunker) warnOnce(language, reason string) {
	c.warnedMu.Lock()
	defer c.warnedMu.Unlock()
	if c.warned[language] {
		return
	}
	c.warned[language] = true
	slog.Warn("chunk: falling back to size-based splitting", slog.String("language", language), slog.String("reason", reason))
}

// Chunk splits a file into semantic chunks
func (c *CodeChunker) Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error) {
	if len(file.Content) == 0 {
		return nil, nil
	}

	// Check if language is supported
	_, supported := c.registry.GetByName(file.Language)
	if !supported {
		c.warnOnce(file.Language, "no tree-sitter grammar registered")
		return c.chunkBySeparators(file)
	}

	// Parse the file
	tree, err := c.parser.Parse(ctx, file.Content, file.Language)
	if err != nil {
		c.warnOnce(file.Language, "parse error: "+err.Error())
		return c.chunkBySeparators(file)
	}

	// Extract context (package declaration, imports)
	fileContext := c.extractFileContext(tree, file.Content, file.Language)

	// Enrich context with file path marker for better embedding quality
	fileContext = c.enrichContextWithFilePath(file.Path, file.Language, fileContext)

	// Find symbol nodes (functions, classes, methods, types)
	symbolNodes := c.findSymbolNodes(tree, file.Language)

	if len(symbolNodes) == 0 {
		// No function/class/type/etc. declaration was found anywhere in the
		// file (a doc.go-style file, a constants-only file the grammar
		// doesn't recognize as such, a markup file parsed under a code
		// grammar, ...). The file still has real content that must remain
		// searchable, so fall back to a synthetic module chunk covering the
		// whole parsed source rather than dropping it on the floor.
		return c.chunkAsModule(tree, file, fileContext), nil
	}

	// Create chunks from symbol nodes
	chunks := make([]*Chunk, 0, len(symbolNodes))
	now := time.Now()

	for _, node := range symbolNodes {
		nodeChunks := c.createChunksFromNode(node, tree, file, fileContext, now)
		chunks = append(chunks, nodeChunks...)
	}

	return mergeSmallSiblings(chunks, c.options.MinChunkChars, c.options.MaxChunkChars), nil
}

// chunkAsModule builds the synthetic "module" chunk(s) for a successfully
// parsed file that yielded no symbol nodes. The whole parsed source is
// treated as a single module-level unit and, like any other over-large
// symbol, split by size if it exceeds MaxChunkChars.
func (c *CodeChunker) chunkAsModule(tree *Tree, file *FileInput, fileContext string) []*Chunk {
	content := string(tree.Source)
	if strings.TrimSpace(content) == "" {
		return nil
	}

	symbol := &Symbol{
		Name:      file.Path,
		Type:      SymbolTypeModule,
		StartLine: 1,
		EndLine:   countLines(content),
	}

	if len(content) <= c.options.MaxChunkChars {
		return []*Chunk{c.createChunk(file, content, fileContext, symbol, "module", time.Now())}
	}

	return c.splitBySizeWithinSymbol(content, symbol, file, fileContext, time.Now(), 1, "module")
}

// symbolNodeInfo holds a symbol node with its extracted symbol info
type symbolNodeInfo struct {
	node   *Node
	symbol *Symbol
}

// findSymbolNodes finds all top-level symbol-defining nodes: the walk does
// not descend into a node once it has been recognised as a symbol.
func (c *CodeChunker) findSymbolNodes(tree *Tree, language string) []*symbolNodeInfo {
	// Return empty slice, not nil, for consistent API behavior (DEBT-012)
	config, ok := c.registry.GetByName(language)
	if !ok {
		return []*symbolNodeInfo{}
	}

	symbolTypes := c.symbolTypeMap(config)

	var symbolNodes []*symbolNodeInfo
	tree.Root.Walk(func(n *Node) bool {
		// For JS/TS lexical_declaration/variable_declaration, check for arrow functions first.
		// Arrow functions should be typed as Function, not Constant.
		if n.Type == "lexical_declaration" || n.Type == "variable_declaration" {
			sym := c.extractor.extractSpecialSymbol(n, tree.Source, language)
			if sym != nil {
				symbolNodes = append(symbolNodes, &symbolNodeInfo{node: n, symbol: sym})
				return false
			}
		}

		if symType, isSymbol := symbolTypes[n.Type]; isSymbol {
			sym := c.extractSymbol(n, tree, symType, language)
			if sym != nil {
				symbolNodes = append(symbolNodes, &symbolNodeInfo{node: n, symbol: sym})
				return false
			}
		}
		return true
	})

	return symbolNodes
}

// symbolTypeMap builds the node-type -> SymbolType lookup for a language config.
func (c *CodeChunker) symbolTypeMap(config *LanguageConfig) map[string]SymbolType {
	symbolTypes := make(map[string]SymbolType)
	for _, t := range config.FunctionTypes {
		symbolTypes[t] = SymbolTypeFunction
	}
	for _, t := range config.MethodTypes {
		symbolTypes[t] = SymbolTypeMethod
	}
	for _, t := range config.ClassTypes {
		symbolTypes[t] = SymbolTypeClass
	}
	for _, t := range config.InterfaceTypes {
		symbolTypes[t] = SymbolTypeInterface
	}
	for _, t := range config.TypeDefTypes {
		symbolTypes[t] = SymbolTypeType
	}
	for _, t := range config.ConstantTypes {
		symbolTypes[t] = SymbolTypeConstant
	}
	for _, t := range config.VariableTypes {
		symbolTypes[t] = SymbolTypeVariable
	}
	return symbolTypes
}

// extractSymbol extracts symbol info from a node
func (c *CodeChunker) extractSymbol(n *Node, tree *Tree, symType SymbolType, language string) *Symbol {
	config, _ := c.registry.GetByName(language)
	name := c.extractor.extractName(n, tree.Source, config, language)
	if name == "" {
		return nil
	}

	docComment := c.extractDocComment(n, tree.Source, language)

	return &Symbol{
		Name:       name,
		Type:       symType,
		StartLine:  int(n.StartPoint.Row) + 1,
		EndLine:    int(n.EndPoint.Row) + 1,
		DocComment: docComment,
	}
}

// extractDocComment extracts doc comment for a node, looking for multi-line comments
func (c *CodeChunker) extractDocComment(n *Node, source []byte, language string) string {
	lineStart := int(n.StartByte)
	for lineStart > 0 && source[lineStart-1] != '\n' {
		lineStart--
	}

	if lineStart <= 1 {
		return ""
	}

	var commentLines []string
	pos := lineStart - 1

	for pos > 0 {
		prevLineEnd := pos
		pos--
		for pos > 0 && source[pos] != '\n' {
			pos--
		}
		prevLineStart := pos
		if pos > 0 {
			prevLineStart++
		}

		prevLine := strings.TrimSpace(string(source[prevLineStart:prevLineEnd]))

		switch language {
		case "python", "ruby":
			if strings.HasPrefix(prevLine, "#") {
				commentLines = append([]string{strings.TrimPrefix(prevLine, "#")}, commentLines...)
				continue
			}
		default:
			if strings.HasPrefix(prevLine, "//") {
				commentLines = append([]string{strings.TrimPrefix(prevLine, "//")}, commentLines...)
				continue
			}
		}

		if prevLine != "" {
			break
		}
	}

	if len(commentLines) == 0 {
		return ""
	}

	return strings.TrimSpace(strings.Join(commentLines, "\n"))
}

// createChunksFromNode creates one or more chunks from a symbol node
func (c *CodeChunker) createChunksFromNode(info *symbolNodeInfo, tree *Tree, file *FileInput, fileContext string, now time.Time) []*Chunk {
	node := info.node
	rawContent := string(tree.Source[node.StartByte:node.EndByte])

	rawContentWithDoc := rawContent
	if info.symbol.DocComment != "" {
		rawContentWithDoc = c.getRawContentWithDocComment(node, tree.Source, info.symbol.DocComment)
	}

	if len(rawContentWithDoc) <= c.options.MaxChunkChars {
		chunk := c.createChunk(file, rawContentWithDoc, fileContext, info.symbol, node.Type, now)
		return []*Chunk{chunk}
	}

	return c.splitLargeSymbol(info, tree, file, fileContext, now)
}

// getRawContentWithDocComment gets raw content including doc comment
func (c *CodeChunker) getRawContentWithDocComment(n *Node, source []byte, docComment string) string {
	lineStart := int(n.StartByte)
	for lineStart > 0 && source[lineStart-1] != '\n' {
		lineStart--
	}

	docLines := strings.Count(docComment, "\n") + 1
	for i := 0; i < docLines && lineStart > 0; i++ {
		lineStart--
		for lineStart > 0 && source[lineStart-1] != '\n' {
			lineStart--
		}
	}

	return string(source[lineStart:n.EndByte])
}

// splitLargeSymbol splits a symbol node whose source exceeds MaxChunkChars.
// It first tries to split at the next grammatical level (the node's direct
// children that are themselves symbol-defining, e.g. a class's methods); if
// the node has no such children, it falls back to the size-based splitter.
func (c *CodeChunker) splitLargeSymbol(info *symbolNodeInfo, tree *Tree, file *FileInput, fileContext string, now time.Time) []*Chunk {
	node := info.node

	if childChunks := c.splitByChildSymbols(info, tree, file, fileContext, now); len(childChunks) > 0 {
		return childChunks
	}

	content := string(tree.Source[node.StartByte:node.EndByte])
	return c.splitBySizeWithinSymbol(content, info.symbol, file, fileContext, now, int(node.StartPoint.Row)+1, node.Type)
}

// splitByChildSymbols walks node's children (and grandchildren, for nested
// member lists such as a class's body) looking for nodes that are themselves
// symbol-defining in the node's language, and emits one chunk per such child.
// Returns nil if no splittable child is found.
func (c *CodeChunker) splitByChildSymbols(info *symbolNodeInfo, tree *Tree, file *FileInput, fileContext string, now time.Time) []*Chunk {
	config, ok := c.registry.GetByName(file.Language)
	if !ok {
		return nil
	}
	symbolTypes := c.symbolTypeMap(config)
	// A class shouldn't be split by its own node type (avoid self-match).
	delete(symbolTypes, info.node.Type)
	// Assignments inside a function or method body are statements, not a
	// grammatical level to split the function at.
	if info.symbol.Type == SymbolTypeFunction || info.symbol.Type == SymbolTypeMethod {
		for t, st := range symbolTypes {
			if st == SymbolTypeVariable || st == SymbolTypeConstant {
				delete(symbolTypes, t)
			}
		}
	}

	var children []*symbolNodeInfo
	var walkChildren func(n *Node, depth int)
	walkChildren = func(n *Node, depth int) {
		if depth > 3 {
			return
		}
		for _, child := range n.Children {
			if symType, isSymbol := symbolTypes[child.Type]; isSymbol {
				sym := c.extractSymbol(child, tree, symType, file.Language)
				if sym != nil {
					children = append(children, &symbolNodeInfo{node: child, symbol: sym})
					continue
				}
			}
			walkChildren(child, depth+1)
		}
	}
	walkChildren(info.node, 0)

	if len(children) == 0 {
		return nil
	}

	var chunks []*Chunk
	for _, child := range children {
		chunks = append(chunks, c.createChunksFromNode(child, tree, file, fileContext, now)...)
	}
	return chunks
}

// splitBySizeWithinSymbol applies the size-based splitter to a single
// over-large symbol's content, preserving the symbol's identity (name/type)
// across the resulting parts.
func (c *CodeChunker) splitBySizeWithinSymbol(content string, symbol *Symbol, file *FileInput, fileContext string, now time.Time, startLine int, nodeKind string) []*Chunk {
	pieces := splitBySeparators(content, c.options.MaxChunkChars, c.options.MaxChunkChars/5)
	normalized := normalizeNewlines(content)

	var chunks []*Chunk
	offset := 0
	for idx, piece := range pieces {
		pieceStart := strings.Index(normalized[offset:], piece)
		var chunkStartLine, chunkEndLine int
		if pieceStart < 0 {
			// Overlap makes exact containment unreliable; approximate via line count.
			chunkStartLine = startLine
			chunkEndLine = startLine + countLines(piece) - 1
		} else {
			absStart := offset + pieceStart
			chunkStartLine, chunkEndLine = lineSpan([]byte(normalized), absStart, absStart+len(piece))
			chunkStartLine += startLine - 1
			chunkEndLine += startLine - 1
			offset = absStart
		}

		subSymbol := &Symbol{
			Name:      fmt.Sprintf("%s_part%d", symbol.Name, idx+1),
			Type:      symbol.Type,
			StartLine: chunkStartLine,
			EndLine:   chunkEndLine,
		}

		symbols := []*Symbol{subSymbol}
		if idx == 0 {
			symbols = append(symbols, &Symbol{
				Name:      symbol.Name,
				Type:      symbol.Type,
				StartLine: symbol.StartLine,
				EndLine:   symbol.EndLine,
			})
		}

		chunks = append(chunks, &Chunk{
			ID:          generateChunkID(file.Path, chunkStartLine, chunkEndLine, piece),
			FilePath:    file.Path,
			Content:     combineContextAndContent(fileContext, piece),
			RawContent:  piece,
			Context:     fileContext,
			ContentType: ContentTypeCode,
			Language:    file.Language,
			StartLine:   chunkStartLine,
			EndLine:     chunkEndLine,
			NodeKind:    nodeKind,
			Symbols:     symbols,
			Metadata:    make(map[string]string),
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}

	return chunks
}

// createChunk creates a single chunk from content
func (c *CodeChunker) createChunk(file *FileInput, rawContent, fileContext string, symbol *Symbol, nodeKind string, now time.Time) *Chunk {
	return &Chunk{
		ID:          generateChunkID(file.Path, symbol.StartLine, symbol.EndLine, rawContent),
		FilePath:    file.Path,
		Content:     combineContextAndContent(fileContext, rawContent),
		RawContent:  rawContent,
		Context:     fileContext,
		ContentType: ContentTypeCode,
		Language:    file.Language,
		StartLine:   symbol.StartLine,
		EndLine:     symbol.EndLine,
		NodeKind:    nodeKind,
		Symbols:     []*Symbol{symbol},
		Metadata:    make(map[string]string),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// extractFileContext extracts package declaration and imports from a file
func (c *CodeChunker) extractFileContext(tree *Tree, source []byte, language string) string {
	var parts []string

	switch language {
	case "go":
		parts = c.extractGoContext(tree, source)
	case "typescript", "tsx":
		parts = c.extractTSContext(tree, source)
	case "javascript", "jsx":
		parts = c.extractJSContext(tree, source)
	case "python":
		parts = c.extractPythonContext(tree, source)
	case "java", "kotlin", "scala":
		parts = c.extractCStyleImportContext(tree, source, "import_declaration")
	case "c", "cpp":
		parts = c.extractCStyleImportContext(tree, source, "preproc_include")
	case "csharp":
		parts = c.extractCStyleImportContext(tree, source, "using_directive")
	case "rust":
		parts = c.extractCStyleImportContext(tree, source, "use_declaration")
	case "php":
		parts = c.extractCStyleImportContext(tree, source, "namespace_use_declaration")
	case "ruby":
		// Ruby has no static import list worth hoisting into every chunk's context.
	case "swift":
		parts = c.extractCStyleImportContext(tree, source, "import_declaration")
	}

	return strings.Join(parts, "\n\n")
}

func (c *CodeChunker) extractGoContext(tree *Tree, source []byte) []string {
	var parts []string

	for _, node := range tree.Root.Children {
		if node.Type == "package_clause" {
			parts = append(parts, node.GetContent(source))
			break
		}
	}

	for _, node := range tree.Root.Children {
		if node.Type == "import_declaration" {
			parts = append(parts, node.GetContent(source))
		}
	}

	return parts
}

func (c *CodeChunker) extractTSContext(tree *Tree, source []byte) []string {
	return c.extractJSContext(tree, source)
}

func (c *CodeChunker) extractJSContext(tree *Tree, source []byte) []string {
	var parts []string
	for _, node := range tree.Root.Children {
		if node.Type == "import_statement" {
			parts = append(parts, node.GetContent(source))
		}
	}
	return parts
}

func (c *CodeChunker) extractPythonContext(tree *Tree, source []byte) []string {
	var parts []string
	for _, node := range tree.Root.Children {
		if node.Type == "import_statement" || node.Type == "import_from_statement" {
			parts = append(parts, node.GetContent(source))
		}
	}
	return parts
}

// extractCStyleImportContext is a generic top-level-node-type collector used
// by the languages whose import/include/using statements are direct
// children of the translation unit, same shape as Go's import_declaration.
func (c *CodeChunker) extractCStyleImportContext(tree *Tree, source []byte, nodeType string) []string {
	var parts []string
	for _, node := range tree.Root.Children {
		if node.Type == nodeType {
			parts = append(parts, node.GetContent(source))
		}
	}
	return parts
}

// chunkBySeparators is the fallback for unsupported languages, parse
// failures, and (via splitBySizeWithinSymbol) over-large individual symbols.
func (c *CodeChunker) chunkBySeparators(file *FileInput) ([]*Chunk, error) {
	content := string(file.Content)
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}
	content = normalizeNewlines(content)

	pieces := splitBySeparators(content, LangchainChunkSize, LangchainOverlap)
	now := time.Now()

	var chunks []*Chunk
	offset := 0
	for _, piece := range pieces {
		pieceStart := strings.Index(content[offset:], piece)
		var startLine, endLine int
		if pieceStart < 0 {
			startLine = 1
			endLine = countLines(piece)
		} else {
			absStart := offset + pieceStart
			startLine, endLine = lineSpan([]byte(content), absStart, absStart+len(piece))
			offset = absStart
		}

		chunks = append(chunks, &Chunk{
			ID:          generateChunkID(file.Path, startLine, endLine, piece),
			FilePath:    file.Path,
			Content:     piece,
			RawContent:  piece,
			ContentType: ContentTypeText,
			Language:    file.Language,
			StartLine:   startLine,
			EndLine:     endLine,
			Symbols:     nil,
			Metadata:    make(map[string]string),
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}

	return chunks, nil
}

// mergeSmallSiblings greedily merges consecutive small declarations (single
// constants or variables, the kind of symbol a codebase tends to define many
// of in a row) whose combined size stays under maxChars. Functions, methods,
// classes, interfaces and types are never merged: each is an independently
// retrievable unit regardless of how small its body is, since merging would
// destroy the one-symbol-per-chunk addressability search depends on. It
// assumes chunks arrive in file order (which Chunk does, since
// findSymbolNodes walks the tree depth-first).
func mergeSmallSiblings(chunks []*Chunk, minChars, maxChars int) []*Chunk {
	if len(chunks) < 2 {
		return chunks
	}

	var out []*Chunk
	cur := chunks[0]
	curMergeable := isMergeableDecl(cur, minChars)
	for _, next := range chunks[1:] {
		combinedSize := len(cur.Content) + len(next.Content)
		if curMergeable && isMergeableDecl(next, minChars) &&
			combinedSize <= maxChars && cur.Language == next.Language {
			cur = mergeChunks(cur, next)
			continue
		}
		out = append(out, cur)
		cur = next
		curMergeable = isMergeableDecl(cur, minChars)
	}
	out = append(out, cur)
	return out
}

// isMergeableDecl reports whether chunk is a single small constant or
// variable declaration, the only kind of chunk mergeSmallSiblings combines.
func isMergeableDecl(c *Chunk, minChars int) bool {
	if len(c.Content) >= minChars {
		return false
	}
	if len(c.Symbols) != 1 {
		return false
	}
	switch c.Symbols[0].Type {
	case SymbolTypeConstant, SymbolTypeVariable:
		return true
	default:
		return false
	}
}

func mergeChunks(a, b *Chunk) *Chunk {
	content := a.Content + "\n\n" + b.Content
	raw := a.RawContent + "\n\n" + b.RawContent
	merged := &Chunk{
		ID:          generateChunkID(a.FilePath, a.StartLine, b.EndLine, raw),
		FilePath:    a.FilePath,
		Content:     content,
		RawContent:  raw,
		Context:     a.Context,
		ContentType: a.ContentType,
		Language:    a.Language,
		StartLine:   a.StartLine,
		EndLine:     b.EndLine,
		NodeKind:    "",
		Symbols:     append(append([]*Symbol{}, a.Symbols...), b.Symbols...),
		Metadata:    make(map[string]string),
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
	return merged
}

// combineContextAndContent combines context and raw content into full content
func combineContextAndContent(context, rawContent string) string {
	if context == "" {
		return rawContent
	}
	return context + "\n\n" + rawContent
}

// enrichContextWithFilePath prepends a file path marker to the context.
// This helps embedding models understand file location and scope.
func (c *CodeChunker) enrichContextWithFilePath(filePath, language, existingContext string) string {
	if filePath == "" {
		return existingContext
	}

	var marker string
	switch language {
	case "python", "ruby":
		marker = fmt.Sprintf("# File: %s", filePath)
	default:
		marker = fmt.Sprintf("// File: %s", filePath)
	}

	if existingContext == "" {
		return marker
	}
	return marker + "\n" + existingContext
}
