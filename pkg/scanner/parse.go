package scanner

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/alexaandru/go-sitter-forest/c"
	"github.com/alexaandru/go-sitter-forest/cpp"
	sitter "github.com/alexaandru/go-tree-sitter-bare"
	"github.com/src-d/enry/v2"

	"github.com/Sumatoshi-tech/oxidize/pkg/safeconv"
	"github.com/Sumatoshi-tech/oxidize/pkg/symbols"
)

// Language labels stored on scanned records.
const (
	langC   = "C"
	langCXX = "CXX"
)

// Tree-sitter node types shared by the C and C++ grammars.
const (
	nodeFunctionDefinition = "function_definition"
	nodeFunctionDeclarator = "function_declarator"
	nodeCallExpression     = "call_expression"
	nodeTypeIdentifier     = "type_identifier"
	nodeStructSpecifier    = "struct_specifier"
	nodeUnionSpecifier     = "union_specifier"
	nodeEnumSpecifier      = "enum_specifier"
	nodeTypeDefinition     = "type_definition"
	nodeParameterList      = "parameter_list"
	nodeParameterDecl      = "parameter_declaration"
	nodeIdentifier         = "identifier"
)

// Tree-sitter node types specific to the C++ grammar.
const (
	nodeClassSpecifier      = "class_specifier"
	nodeNamespaceDefinition = "namespace_definition"
	nodeAliasDeclaration    = "alias_declaration"
	nodeTemplateDeclaration = "template_declaration"
	nodeQualifiedIdentifier = "qualified_identifier"
)

// Field names used by both grammars.
const (
	fieldDeclarator = "declarator"
	fieldName       = "name"
	fieldType       = "type"
	fieldBody       = "body"
	fieldFunction   = "function"
	fieldParameters = "parameters"
)

var (
	cLang     *sitter.Language
	cppLang   *sitter.Language
	langSetup sync.Once
)

func languages() (*sitter.Language, *sitter.Language) {
	langSetup.Do(func() {
		cLang = sitter.NewLanguage(c.GetLanguage())
		cppLang = sitter.NewLanguage(cpp.GetLanguage())
	})

	return cLang, cppLang
}

// languageFor picks the grammar and the record language label for a file.
// Extensions decide where they are unambiguous; plain .h headers are
// classified by content via enry.
func languageFor(path string, content []byte) (*sitter.Language, string) {
	cl, cppl := languages()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".c":
		return cl, langC
	case ".cc", ".cpp", ".cxx", ".hh", ".hpp", ".hxx":
		return cppl, langCXX
	}

	if enry.GetLanguage(filepath.Base(path), content) == "C++" {
		return cppl, langCXX
	}

	return cl, langC
}

// fileParser extracts records from one parsed source file.
type fileParser struct {
	path     string
	content  []byte
	language string
	scope    []string // enclosing namespace/class names, outermost first
	records  []symbols.Record
}

// ParseFile parses one source file and returns its function and type records.
// Record ids are zero; the scanner assigns them when assembling the scan.
func ParseFile(ctx context.Context, path string, content []byte) ([]symbols.Record, error) {
	lang, label := languageFor(path, content)

	parser := sitter.NewParser()
	parser.SetLanguage(lang)

	tree, err := parser.ParseString(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	defer tree.Close()

	fp := &fileParser{path: path, content: content, language: label}
	fp.visit(tree.RootNode())

	return fp.records, nil
}

func (fp *fileParser) visit(node sitter.Node) {
	switch node.Type() {
	case nodeNamespaceDefinition:
		fp.visitScoped(node, fp.nodeText(node.ChildByFieldName(fieldName)))
		return
	case nodeFunctionDefinition:
		fp.addFunction(node)
		return
	case nodeStructSpecifier, nodeUnionSpecifier, nodeEnumSpecifier, nodeClassSpecifier:
		if fp.addTypeSpecifier(node) {
			return
		}
	case nodeTypeDefinition:
		fp.addTypedef(node)
		return
	case nodeAliasDeclaration:
		fp.addAlias(node)
		return
	}

	fp.visitChildren(node)
}

func (fp *fileParser) visitChildren(node sitter.Node) {
	for idx := range node.NamedChildCount() {
		fp.visit(node.NamedChild(idx))
	}
}

// visitScoped descends into a namespace or class body with the scope stack
// extended by the enclosing name.
func (fp *fileParser) visitScoped(node sitter.Node, name string) {
	if name != "" {
		fp.scope = append(fp.scope, name)
		defer func() { fp.scope = fp.scope[:len(fp.scope)-1] }()
	}

	fp.visitChildren(node)
}

func (fp *fileParser) qualify(name string) string {
	if len(fp.scope) == 0 {
		return name
	}

	return strings.Join(fp.scope, "::") + "::" + name
}

func (fp *fileParser) addFunction(node sitter.Node) {
	declarator := findDescendant(node.ChildByFieldName(fieldDeclarator), nodeFunctionDeclarator)
	if declarator.IsNull() {
		return
	}

	nameNode := declarator.ChildByFieldName(fieldDeclarator)
	if nameNode.IsNull() {
		return
	}

	name := fp.nodeText(nameNode)
	if name == "" {
		return
	}

	qualified := fp.qualify(name)
	if nameNode.Type() == nodeQualifiedIdentifier {
		// Out-of-line member definition: the declarator already carries
		// the full scope.
		qualified = name
		if idx := strings.LastIndex(name, "::"); idx >= 0 {
			name = name[idx+2:]
		}
	}

	returnType := fp.nodeText(node.ChildByFieldName(fieldType))

	rec := symbols.Record{
		Kind:          symbols.KindFunction,
		Name:          name,
		QualifiedName: qualified,
		Signature:     strings.TrimSpace(returnType + " " + fp.nodeText(node.ChildByFieldName(fieldDeclarator))),
		ReturnType:    returnType,
		Params:        fp.collectParams(declarator),
		Refs:          fp.collectRefs(node.ChildByFieldName(fieldBody)),
		Language:      fp.language,
	}
	fp.finish(node, rec)
}

func (fp *fileParser) collectParams(declarator sitter.Node) []symbols.Param {
	list := declarator.ChildByFieldName(fieldParameters)
	if list.IsNull() {
		return nil
	}

	var params []symbols.Param

	for idx := range list.NamedChildCount() {
		child := list.NamedChild(idx)
		if child.Type() != nodeParameterDecl {
			continue
		}

		param := symbols.Param{Type: fp.nodeText(child.ChildByFieldName(fieldType))}

		ident := findDescendant(child.ChildByFieldName(fieldDeclarator), nodeIdentifier)
		if !ident.IsNull() {
			param.Name = fp.nodeText(ident)
		}

		params = append(params, param)
	}

	return params
}

// collectRefs gathers called function names and used type names inside a
// function body, deduplicated in first-seen order.
func (fp *fileParser) collectRefs(body sitter.Node) []string {
	if body.IsNull() {
		return nil
	}

	var refs []string

	seen := make(map[string]bool)

	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			refs = append(refs, name)
		}
	}

	var walk func(node sitter.Node)

	walk = func(node sitter.Node) {
		switch node.Type() {
		case nodeCallExpression:
			add(fp.nodeText(node.ChildByFieldName(fieldFunction)))
		case nodeTypeIdentifier:
			add(fp.nodeText(node))
		}

		for idx := range node.NamedChildCount() {
			walk(node.NamedChild(idx))
		}
	}

	walk(body)

	return refs
}

// addTypeSpecifier emits a record for a named struct/union/enum/class
// definition. Bare references (specifiers without a body) are skipped and
// traversal continues into children. Returns true when a record was emitted.
func (fp *fileParser) addTypeSpecifier(node sitter.Node) bool {
	if node.ChildByFieldName(fieldBody).IsNull() {
		return false
	}

	name := fp.nodeText(node.ChildByFieldName(fieldName))
	if name == "" {
		return false
	}

	var kind symbols.Kind

	switch node.Type() {
	case nodeStructSpecifier:
		kind = symbols.KindStruct
	case nodeUnionSpecifier:
		kind = symbols.KindUnion
	case nodeEnumSpecifier:
		kind = symbols.KindEnum
	case nodeClassSpecifier:
		kind = symbols.KindClass
	}

	rec := symbols.Record{
		Kind:          kind,
		Name:          name,
		QualifiedName: fp.qualify(name),
		Language:      fp.language,
	}
	fp.finish(node, rec)

	if kind == symbols.KindClass || kind == symbols.KindStruct {
		// Member function definitions live inside the body.
		fp.visitScoped(node, name)
	}

	return true
}

func (fp *fileParser) addTypedef(node sitter.Node) {
	ident := findDescendant(node.ChildByFieldName(fieldDeclarator), nodeTypeIdentifier)
	if ident.IsNull() {
		ident = findDescendant(node.ChildByFieldName(fieldDeclarator), nodeIdentifier)
	}

	if ident.IsNull() {
		return
	}

	name := fp.nodeText(ident)

	rec := symbols.Record{
		Kind:           symbols.KindTypedef,
		Name:           name,
		QualifiedName:  fp.qualify(name),
		UnderlyingType: fp.nodeText(node.ChildByFieldName(fieldType)),
		Language:       fp.language,
	}
	fp.finish(node, rec)
}

func (fp *fileParser) addAlias(node sitter.Node) {
	name := fp.nodeText(node.ChildByFieldName(fieldName))
	if name == "" {
		return
	}

	rec := symbols.Record{
		Kind:           symbols.KindTypeAlias,
		Name:           name,
		QualifiedName:  fp.qualify(name),
		UnderlyingType: fp.nodeText(node.ChildByFieldName(fieldType)),
		Language:       fp.language,
	}
	fp.finish(node, rec)
}

// finish fills the positional fields and appends the record.
func (fp *fileParser) finish(node sitter.Node, rec symbols.Record) {
	start := node.StartPoint()
	end := node.EndPoint()

	rec.File = fp.path
	rec.StartLine = safeconv.MustUint32ToInt(uint32(start.Row)) + 1
	rec.StartCol = safeconv.MustUint32ToInt(uint32(start.Column)) + 1
	rec.EndLine = safeconv.MustUint32ToInt(uint32(end.Row)) + 1
	rec.EndCol = safeconv.MustUint32ToInt(uint32(end.Column)) + 1

	fp.records = append(fp.records, rec)
}

func (fp *fileParser) nodeText(node sitter.Node) string {
	if node.IsNull() {
		return ""
	}

	start, end := node.StartByte(), node.EndByte()
	if safeconv.MustUint32ToInt(uint32(end)) > len(fp.content) || start >= end {
		return ""
	}

	return string(fp.content[start:end])
}

// findDescendant returns the first descendant (or the node itself) with the
// given type, searching depth-first.
func findDescendant(node sitter.Node, typ string) sitter.Node {
	if node.IsNull() {
		return node
	}

	if node.Type() == typ {
		return node
	}

	for idx := range node.NamedChildCount() {
		found := findDescendant(node.NamedChild(idx), typ)
		if !found.IsNull() {
			return found
		}
	}

	return sitter.Node{}
}
