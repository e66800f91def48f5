package analyzer

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"

	"github.com/neto007/HRM-pipeline/internal/models"
)

// typeDeclarations are the Java node types that declare a named type
var typeDeclarations = map[string]bool{
	"class_declaration":           true,
	"interface_declaration":       true,
	"enum_declaration":            true,
	"record_declaration":          true,
	"annotation_type_declaration": true,
}

// ParseJava extracts a SourceUnit from one Java file. relPath is the
// repository-relative path and becomes the unit id when no package is declared.
func ParseJava(ctx context.Context, relPath string, source []byte) (*models.SourceUnit, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(java.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", relPath, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	unit := &models.SourceUnit{
		Path:  relPath,
		Code:  string(source),
		Lines: strings.Count(string(source), "\n") + 1,
	}

	refs := make(map[string]bool)
	methods := make(map[string]bool)
	fields := make(map[string]bool)

	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		switch {
		case child.Type() == "package_declaration":
			unit.Package = declarationName(child, source, "package")
		case child.Type() == "import_declaration":
			if imp := declarationName(child, source, "import"); imp != "" {
				unit.Imports = append(unit.Imports, imp)
			}
		case typeDeclarations[child.Type()]:
			collectType(child, source, unit, methods, fields)
		}
	}

	walk(root, func(n *sitter.Node) {
		if n.Type() == "type_identifier" {
			refs[n.Content(source)] = true
		}
	})
	for _, c := range unit.Classes {
		delete(refs, c)
	}

	unit.PublicMethods = sortedKeys(methods)
	unit.PublicFields = sortedKeys(fields)
	unit.References = sortedKeys(refs)

	stem := strings.TrimSuffix(path.Base(relPath), path.Ext(relPath))
	if unit.Package != "" {
		unit.ID = unit.Package + "." + stem
	} else {
		unit.ID = strings.TrimSuffix(relPath, path.Ext(relPath))
	}

	return unit, nil
}

// collectType records a type declaration and its public members, recursing into nested types.
func collectType(node *sitter.Node, source []byte, unit *models.SourceUnit, methods, fields map[string]bool) {
	if name := node.ChildByFieldName("name"); name != nil {
		unit.Classes = append(unit.Classes, name.Content(source))
	}

	body := node.ChildByFieldName("body")
	if body == nil {
		return
	}
	implicitPublic := node.Type() == "interface_declaration" || node.Type() == "annotation_type_declaration"

	for i := 0; i < int(body.NamedChildCount()); i++ {
		member := body.NamedChild(i)
		switch member.Type() {
		case "method_declaration":
			if implicitPublic || hasModifier(member, "public") {
				if name := member.ChildByFieldName("name"); name != nil {
					methods[name.Content(source)] = true
				}
			}
		case "field_declaration", "constant_declaration":
			if !implicitPublic && !hasModifier(member, "public") {
				continue
			}
			for j := 0; j < int(member.NamedChildCount()); j++ {
				decl := member.NamedChild(j)
				if decl.Type() != "variable_declarator" {
					continue
				}
				if name := decl.ChildByFieldName("name"); name != nil {
					fields[name.Content(source)] = true
				}
			}
		case "enum_body_declarations":
			collectType(member, source, unit, methods, fields)
		default:
			if typeDeclarations[member.Type()] && hasModifier(member, "public") {
				collectType(member, source, unit, methods, fields)
			}
		}
	}
}

func hasModifier(node *sitter.Node, modifier string) bool {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() != "modifiers" {
			continue
		}
		for j := 0; j < int(child.ChildCount()); j++ {
			if child.Child(j).Type() == modifier {
				return true
			}
		}
	}
	return false
}

// declarationName returns "a.b.C" (or "a.b.*") for package and import declarations.
func declarationName(node *sitter.Node, source []byte, keyword string) string {
	text := node.Content(source)
	text = strings.TrimPrefix(strings.TrimSpace(text), keyword)
	text = strings.TrimSuffix(strings.TrimSpace(text), ";")
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "static ")
	return strings.Join(strings.Fields(text), "")
}

func walk(node *sitter.Node, fn func(n *sitter.Node)) {
	fn(node)
	for i := 0; i < int(node.NamedChildCount()); i++ {
		walk(node.NamedChild(i), fn)
	}
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
