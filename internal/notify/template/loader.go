package template

import (
	"embed"
	"fmt"
	"html/template"
	"path"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

//go:embed email/*
var templateFS embed.FS

// Type represents the type of notification template
type Type string

const (
	Email Type = "email"
)

// Fallback is the template used when no kind-specific one exists
const Fallback = "notification"

// Loader manages notification templates
type Loader struct {
	logger     *zap.Logger
	templates  map[Type]*template.Template
	customTpls map[Type]map[string]string
	mu         sync.RWMutex
}

// NewLoader creates new template loader
func NewLoader(logger *zap.Logger) (*Loader, error) {
	loader := &Loader{
		logger:     logger,
		templates:  make(map[Type]*template.Template),
		customTpls: make(map[Type]map[string]string),
	}

	if err := loader.loadDefaultTemplates(); err != nil {
		return nil, err
	}

	return loader, nil
}

// loadDefaultTemplates loads templates from embedded filesystem
func (t *Loader) loadDefaultTemplates() error {
	for _, tplType := range []Type{Email} {
		dir := string(tplType)
		tmpl := template.New("").Funcs(templateFuncs)

		entries, err := templateFS.ReadDir(dir)
		if err != nil {
			return fmt.Errorf("failed to read template directory: %w", err)
		}

		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}

			content, err := templateFS.ReadFile(path.Join(dir, entry.Name()))
			if err != nil {
				return fmt.Errorf("failed to read template file %s: %w", entry.Name(), err)
			}

			name := strings.TrimSuffix(entry.Name(), path.Ext(entry.Name()))
			if _, err := tmpl.New(name).Parse(string(content)); err != nil {
				return fmt.Errorf("failed to parse template %s: %w", entry.Name(), err)
			}
		}

		t.templates[tplType] = tmpl
	}

	return nil
}

// SetCustomTemplate sets a custom template for a notification type
func (t *Loader) SetCustomTemplate(tplType Type, name, content string) error {
	tmpl := template.New(name).Funcs(templateFuncs)
	if _, err := tmpl.Parse(content); err != nil {
		return fmt.Errorf("invalid template: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.customTpls[tplType]; !ok {
		t.customTpls[tplType] = make(map[string]string)
	}
	t.customTpls[tplType][name] = content
	return nil
}

// GetTemplate returns the template for given type and name, falling
// back to the generic notification template
func (t *Loader) GetTemplate(tplType Type, name string) (*template.Template, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, n := range []string{name, Fallback} {
		// Check custom templates first
		if customContent, ok := t.customTpls[tplType][n]; ok {
			tmpl := template.New(n).Funcs(templateFuncs)
			if _, err := tmpl.Parse(customContent); err != nil {
				return nil, err
			}
			return tmpl, nil
		}

		if tmpl, ok := t.templates[tplType]; ok {
			if found := tmpl.Lookup(n); found != nil {
				return found, nil
			}
		}
	}

	return nil, fmt.Errorf("template not found: %s/%s", tplType, name)
}

var titleCaser = cases.Title(language.English)

// Title renders an upper snake case constant as words, e.g.
// "APPROVAL_REQUIRED" becomes "Approval Required"
func Title(s string) string {
	return titleCaser.String(strings.ToLower(strings.ReplaceAll(s, "_", " ")))
}

// Template functions available in all templates
var templateFuncs = template.FuncMap{
	"formatTime": func(t time.Time) string {
		return t.UTC().Format(time.RFC3339)
	},
	"join": strings.Join,
	"title": func(v any) string {
		return Title(fmt.Sprint(v))
	},
}
