package chunk

import (
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// LanguageRegistry maps languages to their tree-sitter grammars and
// chunking configuration.
type LanguageRegistry struct {
	mu          sync.RWMutex
	configs     map[string]*LanguageConfig
	extToLang   map[string]string
	tsLanguages map[string]*sitter.Language
}

// NewLanguageRegistry creates a registry with the built-in languages.
func NewLanguageRegistry() *LanguageRegistry {
	r := &LanguageRegistry{
		configs:     make(map[string]*LanguageConfig),
		extToLang:   make(map[string]string),
		tsLanguages: make(map[string]*sitter.Language),
	}

	r.registerGo()
	r.registerTypeScript()
	r.registerJavaScript()
	r.registerPython()

	return r
}

// GetByExtension returns the config for a file extension.
func (r *LanguageRegistry) GetByExtension(ext string) (*LanguageConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	langName, ok := r.extToLang[ext]
	if !ok {
		return nil, false
	}
	config, ok := r.configs[langName]
	return config, ok
}

// GetByName returns the config for a language name.
func (r *LanguageRegistry) GetByName(name string) (*LanguageConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	config, ok := r.configs[name]
	return config, ok
}

// GetTreeSitterLanguage returns the grammar for a language name.
func (r *LanguageRegistry) GetTreeSitterLanguage(name string) (*sitter.Language, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lang, ok := r.tsLanguages[name]
	return lang, ok
}

// SupportedExtensions returns every registered extension.
func (r *LanguageRegistry) SupportedExtensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exts := make([]string, 0, len(r.extToLang))
	for ext := range r.extToLang {
		exts = append(exts, ext)
	}
	return exts
}

func (r *LanguageRegistry) register(config *LanguageConfig, tsLang *sitter.Language) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.configs[config.Name] = config
	r.tsLanguages[config.Name] = tsLang
	for _, ext := range config.Extensions {
		r.extToLang[ext] = config.Name
	}
}

func (r *LanguageRegistry) registerGo() {
	config := &LanguageConfig{
		Name:       "go",
		Extensions: []string{".go"},
		Declarations: map[string][]string{
			"function_declaration": {"identifier"},
			// Method names live in field_identifier, never in the
			// receiver's identifiers
			"method_declaration": {"field_identifier"},
			"type_declaration":   {"type_identifier"},
			"const_declaration":  {"identifier"},
			"var_declaration":    {"identifier"},
		},
	}
	r.register(config, golang.GetLanguage())
}

func (r *LanguageRegistry) registerTypeScript() {
	decls := map[string][]string{
		"function_declaration":   {"identifier"},
		"class_declaration":      {"type_identifier", "identifier"},
		"interface_declaration":  {"type_identifier"},
		"type_alias_declaration": {"type_identifier"},
		"enum_declaration":       {"identifier"},
		"lexical_declaration":    {"identifier"},
		"variable_declaration":   {"identifier"},
		"export_statement":       {"identifier", "type_identifier"},
	}

	r.register(&LanguageConfig{
		Name:         "typescript",
		Extensions:   []string{".ts"},
		Declarations: decls,
	}, typescript.GetLanguage())

	r.register(&LanguageConfig{
		Name:         "tsx",
		Extensions:   []string{".tsx"},
		Declarations: decls,
	}, tsx.GetLanguage())
}

func (r *LanguageRegistry) registerJavaScript() {
	decls := map[string][]string{
		"function_declaration": {"identifier"},
		"class_declaration":    {"identifier"},
		"lexical_declaration":  {"identifier"},
		"variable_declaration": {"identifier"},
		"export_statement":     {"identifier"},
	}

	r.register(&LanguageConfig{
		Name:         "javascript",
		Extensions:   []string{".js", ".mjs"},
		Declarations: decls,
	}, javascript.GetLanguage())

	r.register(&LanguageConfig{
		Name:         "jsx",
		Extensions:   []string{".jsx"},
		Declarations: decls,
	}, javascript.GetLanguage())
}

func (r *LanguageRegistry) registerPython() {
	r.register(&LanguageConfig{
		Name:       "python",
		Extensions: []string{".py"},
		Declarations: map[string][]string{
			"function_definition":  {"identifier"},
			"class_definition":     {"identifier"},
			"decorated_definition": {"identifier"},
		},
	}, python.GetLanguage())
}

// defaultRegistry is shared by all chunkers.
var defaultRegistry = NewLanguageRegistry()

// DefaultRegistry returns the shared language registry.
func DefaultRegistry() *LanguageRegistry {
	return defaultRegistry
}
