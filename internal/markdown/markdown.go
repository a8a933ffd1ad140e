// Package markdown renders problem statements and other user-authored
// Markdown, with embedded $$...$$ display math, into sanitized HTML.
package markdown

import (
	"bytes"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/starford/ojportal/internal/texmath"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// Fallback stages reported to the fallback hook.
const (
	StageMath     = "math"
	StageDocument = "document"
)

const (
	placeholderPrefix = "@@MATH_BLOCK_"
	placeholderSuffix = "_@@"
)

var displayMath = regexp.MustCompile(`\$\$([\s\S]+?)\$\$`)

// MathRenderer renders a single display-mode expression to HTML.
type MathRenderer interface {
	RenderDisplay(expr string) (string, error)
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithMath replaces the math renderer.
func WithMath(m MathRenderer) Option {
	return func(r *Renderer) { r.math = m }
}

// WithMarkdown replaces the goldmark instance.
func WithMarkdown(md goldmark.Markdown) Option {
	return func(r *Renderer) { r.md = md }
}

// WithLogger sets the logger used for render failures.
func WithLogger(l *slog.Logger) Option {
	return func(r *Renderer) { r.logger = l }
}

// WithFallbackHook registers fn to be called with StageMath or
// StageDocument whenever a render degrades to sanitized raw text.
func WithFallbackHook(fn func(stage string)) Option {
	return func(r *Renderer) { r.onFallback = fn }
}

// Renderer is safe for concurrent use.
type Renderer struct {
	md         goldmark.Markdown
	math       MathRenderer
	document   *bluemonday.Policy
	fragment   *bluemonday.Policy
	logger     *slog.Logger
	onFallback func(stage string)
}

// New creates a Renderer with GitHub-flavored Markdown, hard line breaks
// and MathML display math.
func New(opts ...Option) *Renderer {
	r := &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(
				html.WithHardWraps(),
				html.WithUnsafe(),
			),
		),
		math:     texmath.Renderer{},
		document: DocumentPolicy(),
		fragment: MathPolicy(),
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

type placeholder struct {
	token string
	html  string
}

// Render converts source to sanitized HTML. It never fails: a broken math
// expression renders as its sanitized text and a broken document renders
// as the sanitized source.
func (r *Renderer) Render(source string) string {
	if source == "" {
		return ""
	}

	var blocks []placeholder
	pre := displayMath.ReplaceAllStringFunc(source, func(span string) string {
		expr := span[2 : len(span)-2]
		token := fmt.Sprintf("%s%d%s", placeholderPrefix, len(blocks), placeholderSuffix)
		blocks = append(blocks, placeholder{token: token, html: r.renderMath(expr)})
		return token
	})

	out, err := r.convert(pre)
	if err != nil {
		r.logger.Error("markdown render failed", slog.String("error", err.Error()))
		r.fallback(StageDocument)
		return r.document.Sanitize(source)
	}

	sanitized := r.document.Sanitize(out)
	for _, b := range blocks {
		sanitized = strings.ReplaceAll(sanitized, b.token, b.html)
	}
	return sanitized
}

func (r *Renderer) renderMath(expr string) string {
	rendered, err := r.math.RenderDisplay(strings.TrimSpace(expr))
	if err != nil {
		r.logger.Warn("math render failed",
			slog.String("expr", expr),
			slog.String("error", err.Error()),
		)
		r.fallback(StageMath)
		return r.fragment.Sanitize(expr)
	}
	return r.fragment.Sanitize(rendered)
}

func (r *Renderer) convert(src string) (out string, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("markdown: convert: panic: %v", v)
		}
	}()

	var buf bytes.Buffer
	if err := r.md.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("markdown: convert: %w", err)
	}
	return buf.String(), nil
}

func (r *Renderer) fallback(stage string) {
	if r.onFallback != nil {
		r.onFallback(stage)
	}
}
