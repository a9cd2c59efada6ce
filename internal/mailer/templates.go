package mailer

import (
	"embed"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/osteele/liquid"
	"gopkg.in/yaml.v3"
)

//go:embed templates/defaults.yaml
var defaultTemplates embed.FS

// Template is one named email: Liquid sources for subject and bodies.
type Template struct {
	Subject string `yaml:"subject"`
	HTML    string `yaml:"html"`
	Text    string `yaml:"text"`
}

// Rendered is a template after variable substitution.
type Rendered struct {
	Subject string
	HTML    string
	Text    string
}

// Renderer renders named and ad-hoc Liquid templates. It is safe for
// concurrent use.
type Renderer struct {
	engine *liquid.Engine
	cache  sync.Map // source -> *liquid.Template

	mu        sync.RWMutex
	templates map[string]Template
}

// NewRenderer loads the embedded default templates.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{engine: liquid.NewEngine(), templates: map[string]Template{}}
	r.registerFilters()

	data, err := defaultTemplates.ReadFile("templates/defaults.yaml")
	if err != nil {
		return nil, fmt.Errorf("read default templates: %w", err)
	}
	if err := r.load(data); err != nil {
		return nil, fmt.Errorf("default templates: %w", err)
	}
	return r, nil
}

func (r *Renderer) registerFilters() {
	// {{ first_name | default: "Friend" }} also treats "" as missing.
	r.engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		if s := fmt.Sprintf("%v", value); s == "" || s == "<nil>" {
			return defaultVal
		}
		return value
	})
	r.engine.RegisterFilter("titlecase", func(s string) string {
		words := strings.Fields(strings.ToLower(s))
		for i, w := range words {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
		return strings.Join(words, " ")
	})
	r.engine.RegisterFilter("urlencode", func(s string) string {
		return url.QueryEscape(s)
	})
}

// LoadDir overrides or adds templates from every *.yaml file in dir.
func (r *Renderer) LoadDir(dir string) error {
	files, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return err
	}
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("read %s: %w", f, err)
		}
		if err := r.load(data); err != nil {
			return fmt.Errorf("%s: %w", f, err)
		}
	}
	return nil
}

func (r *Renderer) load(data []byte) error {
	var set map[string]Template
	if err := yaml.Unmarshal(data, &set); err != nil {
		return err
	}
	for name, t := range set {
		if t.Subject == "" || (t.HTML == "" && t.Text == "") {
			return fmt.Errorf("template %q needs a subject and a body", name)
		}
		for _, src := range []string{t.Subject, t.HTML, t.Text} {
			if err := r.Parse(src); err != nil {
				return fmt.Errorf("template %q: %w", name, err)
			}
		}
	}
	r.mu.Lock()
	for name, t := range set {
		r.templates[name] = t
	}
	r.mu.Unlock()
	return nil
}

// Has reports whether a named template is loaded.
func (r *Renderer) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.templates[name]
	return ok
}

// Parse checks src for Liquid syntax errors.
func (r *Renderer) Parse(src string) error {
	if src == "" {
		return nil
	}
	_, err := r.compile(src)
	return err
}

// Render renders the named template with vars.
func (r *Renderer) Render(name string, vars map[string]interface{}) (*Rendered, error) {
	r.mu.RLock()
	t, ok := r.templates[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown email template %q", name)
	}
	return r.RenderTemplate(t, vars)
}

// RenderTemplate renders an ad-hoc template with vars.
func (r *Renderer) RenderTemplate(t Template, vars map[string]interface{}) (*Rendered, error) {
	var out Rendered
	var err error
	if out.Subject, err = r.RenderString(t.Subject, vars); err != nil {
		return nil, fmt.Errorf("subject: %w", err)
	}
	if out.HTML, err = r.RenderString(t.HTML, vars); err != nil {
		return nil, fmt.Errorf("html: %w", err)
	}
	if out.Text, err = r.RenderString(t.Text, vars); err != nil {
		return nil, fmt.Errorf("text: %w", err)
	}
	out.Subject = strings.TrimSpace(out.Subject)
	return &out, nil
}

// RenderString renders a single Liquid source.
func (r *Renderer) RenderString(src string, vars map[string]interface{}) (string, error) {
	if src == "" {
		return "", nil
	}
	tpl, err := r.compile(src)
	if err != nil {
		return "", err
	}
	out, rerr := tpl.RenderString(liquid.Bindings(vars))
	if rerr != nil {
		return "", rerr
	}
	return out, nil
}

func (r *Renderer) compile(src string) (*liquid.Template, error) {
	if cached, ok := r.cache.Load(src); ok {
		return cached.(*liquid.Template), nil
	}
	tpl, err := r.engine.ParseString(src)
	if err != nil {
		return nil, err
	}
	r.cache.Store(src, tpl)
	return tpl, nil
}
