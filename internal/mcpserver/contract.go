package mcpserver

const contractURI = "ojportal://statement-format"

// StatementFormatContract describes the Markdown dialect problem statements
// are written in and what the portal does with each construct.
const StatementFormatContract = `# Problem Statement Format Contract

Problem descriptions, input formats and output formats are Markdown
rendered to sanitized HTML. Follow these rules so statements render the
same way for every contestant.

## Markdown

1. **GitHub-flavored Markdown.** Tables, strikethrough, task lists and
   autolinks are available.
2. **Single line breaks are kept.** A newline inside a paragraph renders
   as a line break; leave a blank line to start a new paragraph.
3. **Raw HTML is filtered.** Scripts, event handlers, iframes and styles
   are removed. Prefer Markdown equivalents.

## Math

1. **Display math only.** Wrap formulas in double dollars:
   ` + "`" + `$$\sum_{i=1}^{n} a_i$$` + "`" + `. The span may cross lines. Single dollars
   are plain text.
2. **Spans do not nest.** The first ` + "`" + `$$` + "`" + ` after an opening one closes it.
3. **Supported TeX.** Letters, digits and operators; groups ` + "`" + `{...}` + "`" + `;
   ` + "`" + `^` + "`" + ` and ` + "`" + `_` + "`" + `; ` + "`" + `\frac` + "`" + `, ` + "`" + `\binom` + "`" + `, ` + "`" + `\sqrt[n]{...}` + "`" + `; ` + "`" + `\text{...}` + "`" + `;
   ` + "`" + `\left` + "`" + `/` + "`" + `\right` + "`" + ` delimiters; Greek letters, relations, arrows and
   big operators; ` + "`" + `\mathbb` + "`" + `, ` + "`" + `\mathbf` + "`" + ` and friends; the environments
   matrix, pmatrix, bmatrix, Bmatrix, vmatrix, Vmatrix, cases, aligned
   and array.
4. **Malformed math degrades.** An expression that fails to parse (for
   example an unbalanced brace) is shown as its escaped source text; the
   rest of the statement still renders.

## Samples

Sample input and output are plain text shown verbatim; do not put
Markdown or math in them.
`
