package render

import (
	"context"
	"testing"

	"github.com/paktel/notify-gateway/internal/model"
)

type fakeSource struct {
	templates map[string]string
}

func (s *fakeSource) Get(ctx context.Context, key string, channel model.Channel) (*model.Template, error) {
	body, ok := s.templates[key+"/"+channel.String()]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &model.Template{Key: key, Channel: channel, Body: body}, nil
}

func newRenderer(templates map[string]string) *Renderer {
	return NewRenderer(&fakeSource{templates: templates})
}

func job(key string, vars model.JSONMap) *model.Job {
	return &model.Job{
		Channel:           model.ChannelSMS,
		TemplateKey:       key,
		TemplateVariables: vars,
	}
}

func TestRender_SubstitutesVariables(t *testing.T) {
	r := newRenderer(map[string]string{
		"invite/sms": "Hi {{name}}, join {{org}} today!",
	})

	got, err := r.Render(context.Background(), job("invite", model.JSONMap{
		"name": "Dana",
		"org":  "Acme",
	}))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	want := "Hi Dana, join Acme today!"
	if got != want {
		t.Fatalf("Render = %q, want %q", got, want)
	}
}

func TestRender_NumericVariables(t *testing.T) {
	r := newRenderer(map[string]string{
		"otp/sms": "Your code is {{code}}",
	})

	got, err := r.Render(context.Background(), job("otp", model.JSONMap{"code": 123456}))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got != "Your code is 123456" {
		t.Fatalf("Render = %q", got)
	}
}

func TestRender_MissingVariableFails(t *testing.T) {
	r := newRenderer(map[string]string{
		"invite/sms": "Hi {{name}}",
	})

	if _, err := r.Render(context.Background(), job("invite", model.JSONMap{})); err == nil {
		t.Fatal("expected error for missing variable")
	}
}

func TestRender_UnknownTemplateFails(t *testing.T) {
	r := newRenderer(map[string]string{})

	if _, err := r.Render(context.Background(), job("nope", nil)); err == nil {
		t.Fatal("expected error for unknown template")
	}
}

func TestRender_NoPlaceholders(t *testing.T) {
	r := newRenderer(map[string]string{
		"static/sms": "Service maintenance tonight.",
	})

	got, err := r.Render(context.Background(), job("static", nil))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got != "Service maintenance tonight." {
		t.Fatalf("Render = %q", got)
	}
}
