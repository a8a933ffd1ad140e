package markdown

import (
	"regexp"

	"github.com/microcosm-cc/bluemonday"
)

var (
	katexClass = regexp.MustCompile(`^katex(-display)?$`)

	mathBool   = regexp.MustCompile(`^(true|false)$`)
	mathLength = regexp.MustCompile(`^[+-]?[0-9]*\.?[0-9]+(em|ex|px|pt|mu|%)?$`)
	mathWords  = regexp.MustCompile(`^[a-z-]+( [a-z-]+)*$`)
	mathSpaces = regexp.MustCompile(`^[+-]?[0-9]*\.?[0-9]+(em|ex|px|pt|%)?( [+-]?[0-9]*\.?[0-9]+(em|ex|px|pt|%)?)*$`)
)

// mathElements is every MathML element the display math renderer emits.
var mathElements = []string{
	"math", "semantics", "annotation", "mrow", "mi", "mn", "mo", "mtext",
	"mspace", "msup", "msub", "msubsup", "mover", "munder", "munderover",
	"mfrac", "msqrt", "mroot", "mtable", "mtr", "mtd", "mlabeledtr",
	"mpadded", "mstyle", "menclose", "mmultiscripts", "mprescripts", "none",
	"merror", "mphantom",
}

// DocumentPolicy is the policy applied to whole rendered documents.
func DocumentPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class").Matching(katexClass).OnElements("span")
	return p
}

// MathPolicy is DocumentPolicy plus the MathML vocabulary emitted for
// display math. Presentation attributes pass when their values are plain
// keywords or lengths; class, style and color attributes are dropped.
func MathPolicy() *bluemonday.Policy {
	p := DocumentPolicy()

	// bluemonday drops allowed elements that end up with no attributes
	// unless they are explicitly allowed bare.
	p.AllowNoAttrs().OnElements(mathElements...)

	p.AllowAttrs("xmlns").Matching(regexp.MustCompile(`^http://www\.w3\.org/1998/Math/MathML$`)).OnElements("math")
	p.AllowAttrs("display").Matching(regexp.MustCompile(`^(block|inline)$`)).OnElements("math")
	p.AllowAttrs("encoding").Matching(regexp.MustCompile(`^application/x-tex$`)).OnElements("annotation")

	p.AllowAttrs("mathvariant", "form", "notation", "columnalign", "columnlines", "rowalign").
		Matching(mathWords).OnElements(mathElements...)
	p.AllowAttrs("stretchy", "fence", "accent", "accentunder", "largeop", "movablelimits",
		"symmetric", "displaystyle", "separator").
		Matching(mathBool).OnElements(mathElements...)
	p.AllowAttrs("width", "height", "depth", "voffset", "lspace", "rspace",
		"linethickness", "mathsize", "minsize", "maxsize").
		Matching(mathLength).OnElements(mathElements...)
	p.AllowAttrs("rowspacing", "columnspacing").Matching(mathSpaces).OnElements("mtable")
	p.AllowAttrs("scriptlevel").Matching(regexp.MustCompile(`^[+-]?[0-9]$`)).OnElements("mstyle")
	return p
}
