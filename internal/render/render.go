// Package render builds the outbound message body from a job's template
// key and variables. A render failure is permanent: bad input will not
// fix itself, so the dispatcher fails the job instead of retrying.
package render

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/paktel/notify-gateway/internal/model"
	"github.com/valyala/fasttemplate"
)

const (
	startTag = "{{"
	endTag   = "}}"
)

// TemplateSource looks up template bodies (MySQL in production).
type TemplateSource interface {
	Get(ctx context.Context, key string, channel model.Channel) (*model.Template, error)
}

type Renderer struct {
	src TemplateSource
}

func NewRenderer(src TemplateSource) *Renderer {
	return &Renderer{src: src}
}

// Render resolves the job's template and substitutes {{name}}
// placeholders from template_variables. Missing templates and missing
// variables both fail the render.
func (r *Renderer) Render(ctx context.Context, job *model.Job) (string, error) {
	t, err := r.src.Get(ctx, job.TemplateKey, job.Channel)
	if err != nil {
		return "", fmt.Errorf("template %q/%s: %w", job.TemplateKey, job.Channel, err)
	}

	tpl, err := fasttemplate.NewTemplate(t.Body, startTag, endTag)
	if err != nil {
		return "", fmt.Errorf("parse template %q: %w", job.TemplateKey, err)
	}

	vars := job.TemplateVariables
	out, err := tpl.ExecuteFuncStringWithErr(func(w io.Writer, tag string) (int, error) {
		name := strings.TrimSpace(tag)
		v, ok := vars[name]
		if !ok {
			return 0, fmt.Errorf("missing template variable %q", name)
		}
		return fmt.Fprint(w, v)
	})
	if err != nil {
		return "", fmt.Errorf("render template %q: %w", job.TemplateKey, err)
	}
	return out, nil
}
