package convert

import (
	"regexp"
	"strings"
)

// mathPass is one ordered rewrite step of [MathToSpeech].
type mathPass struct {
	re   *regexp.Regexp
	repl string
}

func pass(expr, repl string) mathPass {
	return mathPass{re: regexp.MustCompile(expr), repl: repl}
}

// mathTokens detects input that contains anything the passes would rewrite.
// Text without such tokens is returned untouched.
var mathTokens = regexp.MustCompile(`[=+*/^<>(){}\[\]\\√∛²³×·÷±≤≥≠≈∞πθαβγλμσΔ∑∫−]|\d\s*-\s*\d|(^|\s)-\s*[\w(]|\w\s+-\s+\w`)

// mathPasses run in order. LaTeX macros and Greek letters are spelled out
// first, then exponents and roots, so that the generic symbol table below
// never sees a caret or a root sign.
var mathPasses = []mathPass{
	// LaTeX structure.
	pass(`\\frac\{([^{}]*)\}\{([^{}]*)\}`, " $1 over $2 "),
	pass(`\\sqrt\{([^{}]*)\}`, " square root of $1 "),
	pass(`\\(?:left|right)\b`, " "),
	pass(`\\(?:cdot|times)\b`, " times "),
	pass(`\\div\b`, " divided by "),
	pass(`\\pm\b`, " plus or minus "),
	pass(`\\(?:leq|le)\b`, " is less than or equal to "),
	pass(`\\(?:geq|ge)\b`, " is greater than or equal to "),
	pass(`\\(?:neq|ne)\b`, " is not equal to "),
	pass(`\\approx\b`, " is approximately "),
	pass(`\\infty\b`, " infinity "),
	pass(`\\sum\b`, " sum of "),
	pass(`\\int\b`, " integral of "),
	pass(`\\(alpha|beta|gamma|delta|theta|lambda|mu|sigma|pi|omega|phi)\b`, " $1 "),
	pass(`\\[a-zA-Z]+`, " "),
	pass(`\\`, " "),

	// Greek and big operators.
	pass(`π`, " pi "),
	pass(`θ`, " theta "),
	pass(`α`, " alpha "),
	pass(`β`, " beta "),
	pass(`γ`, " gamma "),
	pass(`λ`, " lambda "),
	pass(`μ`, " mu "),
	pass(`σ`, " sigma "),
	pass(`Δ`, " delta "),
	pass(`∑`, " sum of "),
	pass(`∫`, " integral of "),
	pass(`∞`, " infinity "),

	// Exponents.
	pass(`\^\{2\}|\^2\b`, " squared "),
	pass(`²`, " squared "),
	pass(`\^\{3\}|\^3\b`, " cubed "),
	pass(`³`, " cubed "),
	pass(`\^\{([^{}]*)\}`, " to the power of $1 "),
	pass(`\^\(([^()]*)\)`, " to the power of $1 "),
	pass(`\^(-?[\w.]+)`, " to the power of $1 "),
	pass(`\^`, " to the power of "),

	// Roots.
	pass(`√\(([^()]*)\)`, " square root of $1 "),
	pass(`√`, " square root of "),
	pass(`∛\(([^()]*)\)`, " cube root of $1 "),
	pass(`∛`, " cube root of "),

	// Comparisons, longest first.
	pass(`<=|≤`, " is less than or equal to "),
	pass(`>=|≥`, " is greater than or equal to "),
	pass(`!=|≠`, " is not equal to "),
	pass(`≈`, " is approximately "),
	pass(`=`, " equals "),
	pass(`<`, " is less than "),
	pass(`>`, " is greater than "),

	// Operators.
	pass(`±`, " plus or minus "),
	pass(`\+`, " plus "),
	pass(`[-−]`, " minus "),
	pass(`\*|×|·`, " times "),
	pass(`/|÷`, " divided by "),

	// Brackets.
	pass(`\(`, " open parenthesis "),
	pass(`\)`, " close parenthesis "),
	pass(`\[`, " open bracket "),
	pass(`\]`, " close bracket "),
	pass(`[{}]`, " "),

	// Whitespace.
	pass(`\s+`, " "),
}

// MathToSpeech rewrites formula notation into words a synthesizer can read,
// e.g. "x^2 = 4" becomes "x squared equals 4". Text that contains no math
// tokens is returned unchanged, and the output never contains math tokens, so
// applying MathToSpeech twice gives the same result as applying it once.
func MathToSpeech(formula string) string {
	if !mathTokens.MatchString(formula) {
		return formula
	}
	out := formula
	for _, p := range mathPasses {
		out = p.re.ReplaceAllString(out, p.repl)
	}
	return strings.TrimSpace(out)
}
