package parser

import (
	"fmt"
	"path/filepath"
	"strings"

	ts "github.com/tree-sitter/go-tree-sitter"
	ts_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	ts_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

// Grammar is one of the tree-sitter grammars a snapshot file is parsed with.
type Grammar int

const (
	GrammarUnknown Grammar = iota
	GrammarJavaScript
	GrammarTypeScript
	// GrammarTSX is TypeScript with JSX expressions enabled.
	GrammarTSX
)

var grammarNames = [...]string{"unknown", "javascript", "typescript", "tsx"}

func (g Grammar) String() string {
	if g < 0 || int(g) >= len(grammarNames) {
		return grammarNames[GrammarUnknown]
	}
	return grammarNames[g]
}

// extensionGrammars maps lower-cased file extensions to grammars. JSX is a
// JavaScript grammar feature, so .jsx needs no variant of its own.
var extensionGrammars = map[string]Grammar{
	".js":  GrammarJavaScript,
	".jsx": GrammarJavaScript,
	".mjs": GrammarJavaScript,
	".cjs": GrammarJavaScript,
	".ts":  GrammarTypeScript,
	".mts": GrammarTypeScript,
	".cts": GrammarTypeScript,
	".tsx": GrammarTSX,
}

// GrammarFor picks the grammar for a snapshot path by extension.
func GrammarFor(path string) Grammar {
	if g, ok := extensionGrammars[strings.ToLower(filepath.Ext(path))]; ok {
		return g
	}
	return GrammarUnknown
}

// SourceExtensions lists the extensions treated as analyzable source, in
// the order used when probing module specifiers.
var SourceExtensions = []string{".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs", ".mts", ".cts"}

func (g Grammar) language() (*ts.Language, error) {
	switch g {
	case GrammarJavaScript:
		return ts.NewLanguage(ts_javascript.Language()), nil
	case GrammarTypeScript:
		return ts.NewLanguage(ts_typescript.LanguageTypescript()), nil
	case GrammarTSX:
		return ts.NewLanguage(ts_typescript.LanguageTSX()), nil
	default:
		return nil, fmt.Errorf("no tree-sitter grammar for %s", g)
	}
}
