package core

import (
	"fmt"
	"io"
	"strings"

	"github.com/valyala/fasttemplate"
)

// TemplateError reports a template that references an unknown tag or is
// malformed.
type TemplateError struct {
	Template string
	Tag      string
	Err      error
}

func (e *TemplateError) Error() string {
	if e == nil {
		return ""
	}
	if e.Tag != "" {
		return fmt.Sprintf("template %q: unknown tag {{%s}}", e.Template, e.Tag)
	}
	return fmt.Sprintf("template %q: %v", e.Template, e.Err)
}

func (e *TemplateError) Unwrap() error { return e.Err }

// Render substitutes {{tag}} placeholders in tmpl. Every tag must be present
// in tags.
func Render(tmpl string, tags map[string]string) (string, error) {
	t, err := fasttemplate.NewTemplate(tmpl, "{{", "}}")
	if err != nil {
		return "", &TemplateError{Template: tmpl, Err: err}
	}
	return t.ExecuteFuncStringWithErr(func(w io.Writer, tag string) (int, error) {
		name := strings.TrimSpace(tag)
		v, ok := tags[name]
		if !ok {
			return 0, &TemplateError{Template: tmpl, Tag: name}
		}
		return io.WriteString(w, v)
	})
}

// ShellQuote quotes s for a POSIX shell.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
