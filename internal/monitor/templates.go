package monitor

import (
	"embed"
	"html/template"
	"io"
	"io/fs"
	"sync"
)

// TemplateProvider abstracts template loading so handler tests can
// inject templates and failures without touching the embedded files.
type TemplateProvider interface {
	// GetTemplate returns a parsed template by name.
	GetTemplate(name string) (*template.Template, error)
	// ExecuteTemplate executes a template with the given data.
	ExecuteTemplate(w io.Writer, name string, data interface{}) error
}

// EmbeddedTemplateProvider loads templates from an embedded filesystem
// and caches the parsed results.
type EmbeddedTemplateProvider struct {
	fs      embed.FS
	baseDir string

	mu    sync.Mutex
	cache map[string]*template.Template
}

// NewEmbeddedTemplateProvider creates a provider reading from embedFS,
// with names resolved under baseDir when it is non-empty.
func NewEmbeddedTemplateProvider(embedFS embed.FS, baseDir string) *EmbeddedTemplateProvider {
	return &EmbeddedTemplateProvider{
		fs:      embedFS,
		baseDir: baseDir,
		cache:   make(map[string]*template.Template),
	}
}

// GetTemplate parses and caches a template from the embedded FS.
func (p *EmbeddedTemplateProvider) GetTemplate(name string) (*template.Template, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.cache[name]; ok {
		return t, nil
	}

	path := name
	if p.baseDir != "" {
		path = p.baseDir + "/" + name
	}

	content, err := p.fs.ReadFile(path)
	if err != nil {
		return nil, err
	}

	t, err := template.New(name).Parse(string(content))
	if err != nil {
		return nil, err
	}

	p.cache[name] = t
	return t, nil
}

// ExecuteTemplate loads and executes a template.
func (p *EmbeddedTemplateProvider) ExecuteTemplate(w io.Writer, name string, data interface{}) error {
	t, err := p.GetTemplate(name)
	if err != nil {
		return err
	}
	return t.Execute(w, data)
}

// MockTemplateProvider serves templates from an in-memory map and can
// be primed to fail, for handler error-path tests.
type MockTemplateProvider struct {
	Templates    map[string]string
	GetError     error
	ExecuteError error
	ExecuteCalls []ExecuteCall
}

// ExecuteCall records one ExecuteTemplate invocation.
type ExecuteCall struct {
	Name string
	Data interface{}
}

// NewMockTemplateProvider creates a mock provider with the given
// templates.
func NewMockTemplateProvider(templates map[string]string) *MockTemplateProvider {
	return &MockTemplateProvider{Templates: templates}
}

// GetTemplate parses the named template from the map.
func (m *MockTemplateProvider) GetTemplate(name string) (*template.Template, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	content, ok := m.Templates[name]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return template.New(name).Parse(content)
}

// ExecuteTemplate records the call and executes the named template.
func (m *MockTemplateProvider) ExecuteTemplate(w io.Writer, name string, data interface{}) error {
	m.ExecuteCalls = append(m.ExecuteCalls, ExecuteCall{Name: name, Data: data})
	if m.ExecuteError != nil {
		return m.ExecuteError
	}
	t, err := m.GetTemplate(name)
	if err != nil {
		return err
	}
	return t.Execute(w, data)
}
