package util

import (
	"fmt"
	"strings"
	"sync"
	"text/template"
)

// TemplateOptions configures RenderTemplate.
type TemplateOptions struct {
	// Strict fails rendering when a referenced key is missing instead of
	// printing "<no value>".
	Strict bool
}

var funcs = template.FuncMap{
	"default": func(fallback, val any) any {
		if val == nil || val == "" {
			return fallback
		}
		return val
	},
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"trim":  strings.TrimSpace,
	"title": func(s string) string {
		if s == "" {
			return s
		}
		return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
	},
	"join": func(sep string, items any) string {
		switch v := items.(type) {
		case []string:
			return strings.Join(v, sep)
		case []any:
			parts := make([]string, len(v))
			for i, item := range v {
				parts[i] = fmt.Sprint(item)
			}
			return strings.Join(parts, sep)
		default:
			return fmt.Sprint(items)
		}
	},
}

type cacheKey struct {
	text   string
	strict bool
}

// parsed templates, keyed by source and strictness
var cache sync.Map

// RenderTemplate expands {{ }} placeholders in text against data, usually a
// snapshot of a run's context store. Output is not HTML escaped. Parsed
// templates are cached, so instructions rendered on every model turn are
// parsed once.
func RenderTemplate(text string, data map[string]any, optFns ...func(o *TemplateOptions)) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}

	opts := TemplateOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	tmpl, err := parse(cacheKey{text: text, strict: opts.Strict})
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}

	return sb.String(), nil
}

func parse(key cacheKey) (*template.Template, error) {
	if t, ok := cache.Load(key); ok {
		return t.(*template.Template), nil
	}

	missing := "missingkey=default"
	if key.strict {
		missing = "missingkey=error"
	}

	t, err := template.New("text").Option(missing).Funcs(funcs).Parse(key.text)
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}

	actual, _ := cache.LoadOrStore(key, t)

	return actual.(*template.Template), nil
}
