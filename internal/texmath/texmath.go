// Package texmath renders TeX display math to MathML.
//
// Translation is done by treeblood. The result is wrapped the way KaTeX
// wraps display math (a katex-display span around a block-level <math>
// element carrying the original TeX as an annotation), so pages can style
// and copy it the same way. Malformed input is reported as an error
// wrapping ErrSyntax instead of being rendered partially.
package texmath

import (
	"errors"
	"fmt"
	"strings"

	"github.com/wyatt915/treeblood"
)

// ErrSyntax is wrapped by every rejected expression.
var ErrSyntax = errors.New("texmath: syntax error")

const maxDepth = 64

var environments = map[string]bool{
	"matrix": true, "pmatrix": true, "bmatrix": true, "Bmatrix": true,
	"vmatrix": true, "Vmatrix": true, "pmatrix*": true, "bmatrix*": true,
	"Bmatrix*": true, "vmatrix*": true, "Vmatrix*": true,
	"cases": true, "aligned": true, "align": true, "align*": true,
	"array": true, "subarray": true,
}

// Renderer renders display math. Macros maps command names, without the
// leading backslash, to their TeX expansion. The zero value is ready to
// use.
type Renderer struct {
	Macros map[string]string
}

// RenderDisplay implements the markdown package's math renderer contract.
func (r Renderer) RenderDisplay(expr string) (string, error) {
	return render(expr, r.Macros)
}

// RenderDisplay renders expr in display mode.
func RenderDisplay(expr string) (string, error) {
	return render(expr, nil)
}

func render(expr string, macros map[string]string) (out string, err error) {
	if err := validate(expr); err != nil {
		return "", err
	}

	defer func() {
		if v := recover(); v != nil {
			out, err = "", fmt.Errorf("%w: %v", ErrSyntax, v)
		}
	}()

	// A document holds per-expression parse state, so each call gets its own.
	doc := treeblood.NewDocument(macros, false)
	doc.PrintOneLine = true
	mml, err := doc.DisplayStyle(expr)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSyntax, err)
	}
	if strings.Contains(mml, "<merror") {
		return "", fmt.Errorf("%w: unsupported construct in %q", ErrSyntax, expr)
	}
	return `<span class="katex-display"><span class="katex">` + strings.TrimSpace(mml) + `</span></span>`, nil
}

func syntaxErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSyntax, fmt.Sprintf(format, args...))
}

// validate rejects the structural mistakes treeblood would otherwise
// render leniently: unbalanced groups, fences and environments, dangling
// or doubled scripts, and stray alignment tabs.
func validate(expr string) error {
	src := []rune(expr)
	depth, lefts := 0, 0
	var envs []string

	for i := 0; i < len(src); i++ {
		switch src[i] {
		case '{':
			depth++
			if depth > maxDepth {
				return syntaxErr("groups nested deeper than %d", maxDepth)
			}
		case '}':
			if depth == 0 {
				return syntaxErr("unbalanced braces: unexpected }")
			}
			depth--
		case '&':
			if len(envs) == 0 {
				return syntaxErr("& outside an environment")
			}
		case '^', '_':
			if err := checkScript(src, i); err != nil {
				return err
			}
		case '\\':
			name, next := command(src, i)
			switch name {
			case "":
				return syntaxErr("dangling backslash")
			case "left":
				lefts++
			case "right":
				if lefts == 0 {
					return syntaxErr(`\right without matching \left`)
				}
				lefts--
			case "begin", "end":
				env, end, ok := groupText(src, next)
				if !ok {
					return syntaxErr(`\%s needs an environment name`, name)
				}
				if name == "begin" {
					if !environments[env] {
						return syntaxErr("unknown environment %q", env)
					}
					envs = append(envs, env)
				} else {
					if len(envs) == 0 || envs[len(envs)-1] != env {
						return syntaxErr(`\end{%s} does not close the open environment`, env)
					}
					envs = envs[:len(envs)-1]
				}
				next = end
			case "sqrt":
				if j := skipSpace(src, next); j < len(src) && src[j] == '[' {
					k := j
					for k < len(src) && src[k] != ']' {
						k++
					}
					if k == len(src) {
						return syntaxErr(`unclosed [ in \sqrt`)
					}
				}
			}
			i = next - 1
		}
	}

	switch {
	case depth > 0:
		return syntaxErr("unbalanced braces: missing }")
	case lefts > 0:
		return syntaxErr(`\left without matching \right`)
	case len(envs) > 0:
		return syntaxErr(`\begin{%s} is never closed`, envs[len(envs)-1])
	}
	return nil
}

// command reads the control sequence starting at the backslash at i and
// returns its name and the index after it. A lone trailing backslash
// yields "".
func command(src []rune, i int) (string, int) {
	j := i + 1
	if j >= len(src) {
		return "", j
	}
	if !isLetter(src[j]) {
		return string(src[j]), j + 1
	}
	for j < len(src) && isLetter(src[j]) {
		j++
	}
	return string(src[i+1 : j]), j
}

// checkScript rejects a script marker at i with no argument, and a second
// script of the same kind right after the first one's argument.
func checkScript(src []rune, i int) error {
	mark := src[i]
	j := skipSpace(src, i+1)
	if j == len(src) {
		return syntaxErr("%c without an argument", mark)
	}
	switch src[j] {
	case '}', '&', '^', '_':
		return syntaxErr("%c without an argument", mark)
	}

	end := j + 1
	switch src[j] {
	case '{':
		nest := 0
		for end = j; end < len(src); end++ {
			if src[end] == '\\' {
				end++
				continue
			}
			if src[end] == '{' {
				nest++
			} else if src[end] == '}' {
				nest--
				if nest == 0 {
					break
				}
			}
		}
		end++
	case '\\':
		_, end = command(src, j)
	}

	if k := skipSpace(src, end); k < len(src) && src[k] == mark {
		if mark == '^' {
			return syntaxErr("double superscript")
		}
		return syntaxErr("double subscript")
	}
	return nil
}

// groupText returns the text of the {...} group starting at or after i.
func groupText(src []rune, i int) (string, int, bool) {
	j := skipSpace(src, i)
	if j >= len(src) || src[j] != '{' {
		return "", j, false
	}
	for k := j + 1; k < len(src); k++ {
		if src[k] == '}' {
			return strings.TrimSpace(string(src[j+1 : k])), k + 1, true
		}
	}
	return "", len(src), false
}

func skipSpace(src []rune, i int) int {
	for i < len(src) && (src[i] == ' ' || src[i] == '\t' || src[i] == '\n' || src[i] == '\r') {
		i++
	}
	return i
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
