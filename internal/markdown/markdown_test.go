package markdown

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
)

type failingMath struct{}

func (failingMath) RenderDisplay(string) (string, error) {
	return "", errors.New("boom")
}

type brokenMarkdown struct {
	goldmark.Markdown
}

func (brokenMarkdown) Convert([]byte, io.Writer, ...parser.ParseOption) error {
	return errors.New("broken")
}

type hookRecorder struct {
	mu     sync.Mutex
	stages []string
}

func (h *hookRecorder) record(stage string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stages = append(h.stages, stage)
}

func TestRenderEmpty(t *testing.T) {
	if got := New().Render(""); got != "" {
		t.Fatalf("Render(\"\") = %q", got)
	}
}

func TestRenderWithoutMathMatchesSanitizedMarkdown(t *testing.T) {
	src := "# Two Sum\n\nGiven an array\nof **integers**.\n\n| a | b |\n|---|---|\n| 1 | 2 |\n"

	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(html.WithHardWraps(), html.WithUnsafe()),
	)
	var buf bytes.Buffer
	if err := md.Convert([]byte(src), &buf); err != nil {
		t.Fatal(err)
	}
	want := DocumentPolicy().Sanitize(buf.String())

	got := New().Render(src)
	if got != want {
		t.Fatalf("Render mismatch\n got: %s\nwant: %s", got, want)
	}
	if !strings.Contains(got, "<br") {
		t.Errorf("soft break not rendered as <br>: %s", got)
	}
	if !strings.Contains(got, "<table>") {
		t.Errorf("GFM table missing: %s", got)
	}
}

func TestRenderInlineDisplayMath(t *testing.T) {
	got := New().Render("Inline $$x^2$$ text")

	if strings.Contains(got, placeholderPrefix) {
		t.Fatalf("placeholder leaked: %s", got)
	}
	if !strings.Contains(got, `<span class="katex-display">`) {
		t.Errorf("missing display wrapper: %s", got)
	}
	for _, want := range []string{"<msup", ">x</mi>", ">2</mn>"} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %s in rendered expression: %s", want, got)
		}
	}
	if !strings.Contains(got, "Inline") || !strings.Contains(got, "text") {
		t.Errorf("surrounding text lost: %s", got)
	}
}

func TestRenderMalformedMathFallsBack(t *testing.T) {
	hooks := &hookRecorder{}
	got := New(WithFallbackHook(hooks.record)).Render(`$$\frac{$$`)

	if strings.Contains(got, placeholderPrefix) {
		t.Fatalf("placeholder leaked: %s", got)
	}
	if !strings.Contains(got, `\frac{`) {
		t.Errorf("raw expression missing from fallback: %s", got)
	}
	if strings.Contains(got, "<math") {
		t.Errorf("unexpected math output: %s", got)
	}
	if len(hooks.stages) != 1 || hooks.stages[0] != StageMath {
		t.Errorf("fallback stages = %v", hooks.stages)
	}
}

func TestRenderFallbackIsSanitized(t *testing.T) {
	r := New(WithMath(failingMath{}))
	got := r.Render("before $$<script>alert(1)</script>a<b$$ after")

	if strings.Contains(got, "<script") {
		t.Fatalf("script survived: %s", got)
	}
	if strings.Contains(got, placeholderPrefix) {
		t.Fatalf("placeholder leaked: %s", got)
	}
}

func TestRenderMultipleBlocks(t *testing.T) {
	got := New().Render("$$a$$ and $$b$$ and $$a$$")

	if strings.Contains(got, placeholderPrefix) {
		t.Fatalf("placeholder leaked: %s", got)
	}
	if n := strings.Count(got, `<span class="katex-display">`); n != 3 {
		t.Fatalf("display blocks = %d, want 3: %s", n, got)
	}
	if strings.Index(got, ">a</mi>") > strings.Index(got, ">b</mi>") {
		t.Errorf("blocks out of order: %s", got)
	}
}

func TestRenderMathSurvivesMarkdownSyntax(t *testing.T) {
	// Underscores and asterisks inside math must not become emphasis.
	got := New().Render("$$a_1 * b_2 * c$$")
	if strings.Contains(got, "<em>") {
		t.Fatalf("markdown applied inside math: %s", got)
	}
	if !strings.Contains(got, "<msub") || !strings.Contains(got, ">1</mn>") {
		t.Errorf("missing subscript: %s", got)
	}
}

func TestRenderKeepsMathStructure(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []string
	}{
		{"fraction", `$$\frac{a}{b}$$`, []string{"<mfrac", ">a</mi>", ">b</mi>"}},
		{"square root", `$$\sqrt{x}$$`, []string{"<msqrt", ">x</mi>"}},
		{"cases", `$$f(x)=\begin{cases}1 & x>0\\0 & x\le 0\end{cases}$$`, []string{"<mtable", "<mtr", "<mtd", ">1</mn>"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := New().Render(tt.src)
			want := append([]string{"<math", "<semantics", "<mrow", "<annotation"}, tt.want...)
			for _, w := range want {
				if !strings.Contains(got, w) {
					t.Errorf("missing %s after sanitizing: %s", w, got)
				}
			}
			for _, dropped := range []string{"style=", "class=\"math-displaystyle\""} {
				if strings.Contains(got, dropped) {
					t.Errorf("%s survived sanitizing: %s", dropped, got)
				}
			}
		})
	}
}

func TestMathPolicyKeepsBareElements(t *testing.T) {
	in := `<math><mrow><mfrac><mi>a</mi><mi>b</mi></mfrac><msqrt><mi>x</mi></msqrt>` +
		`<mtable><mtr><mtd><mn>1</mn></mtd></mtr></mtable></mrow></math>`
	if got := MathPolicy().Sanitize(in); got != in {
		t.Errorf("Sanitize changed bare MathML:\n got %s\nwant %s", got, in)
	}

	got := MathPolicy().Sanitize(`<mi mathvariant="bold" onclick="x()" style="color:red">a</mi>`)
	if got != `<mi mathvariant="bold">a</mi>` {
		t.Errorf("attribute filtering = %s", got)
	}
}

func TestRenderStripsUnsafeHTML(t *testing.T) {
	got := New().Render("hello <script>alert(1)</script><img src=\"x.png\" onerror=\"alert(2)\">")
	if strings.Contains(got, "<script") || strings.Contains(got, "onerror") {
		t.Fatalf("unsafe html survived: %s", got)
	}
}

func TestRenderDocumentFailureFallsBack(t *testing.T) {
	hooks := &hookRecorder{}
	r := New(
		WithMarkdown(brokenMarkdown{Markdown: goldmark.New()}),
		WithFallbackHook(hooks.record),
	)
	got := r.Render("**bold** $$x$$ <script>x</script>")

	if strings.Contains(got, "<script") {
		t.Fatalf("script survived: %s", got)
	}
	if !strings.Contains(got, "**bold**") {
		t.Errorf("raw source not used: %s", got)
	}
	if len(hooks.stages) != 1 || hooks.stages[0] != StageDocument {
		t.Errorf("fallback stages = %v", hooks.stages)
	}
}

func TestRenderConcurrent(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got := r.Render("$$x^2$$"); !strings.Contains(got, "<msup") {
				t.Errorf("unexpected output: %s", got)
			}
		}()
	}
	wg.Wait()
}
