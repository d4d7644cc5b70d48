// Package prompt builds the completion prompt for a math question.
package prompt

import "strings"

// DefaultTemplate asks for a single runnable Manim CE scene. It uses the
// {QUESTION} and {SCENE_NAME} placeholders.
const DefaultTemplate = `You are an experienced math teacher who writes Manim Community Edition animations.

Write a complete, runnable Manim CE script that explains this question step by step:

Question: "{QUESTION}"

Requirements:
- Define exactly one class named {SCENE_NAME} that inherits from Scene.
- Use Matrix() objects, arrows, highlights and MathTex to show each step visually.
- Show intermediate symbolic steps with MathTex, for example MathTex(r"2*5 + 3*(-2) = 4").
- Caption what is happening with Text() or MathTex().
- Lay visuals out so nothing overlaps, and FadeOut what is no longer needed.
- Animate with Create, Write, FadeOut and color changes, and pause with self.wait(1) between steps.

Constraints:
- Keep the math symbolic. Do not compute numerically: no .dot(), no numpy.
- Use Matrix() only to display values.

Output:
Reply with Python code only, using standard Manim CE. No prose and no markdown outside a single code block.
`

// Placeholder dialects. The upper-case form comes from the web form, the
// lower-case form from template files.
var placeholders = [][2]string{
	{"{QUESTION}", "{SCENE_NAME}"},
	{"{question}", "{scene_name}"},
}

// Builder substitutes a question and scene name into a template.
type Builder struct {
	template string
}

// NewBuilder returns a Builder using template as its default. A blank
// template selects DefaultTemplate.
func NewBuilder(template string) *Builder {
	if strings.TrimSpace(template) == "" {
		template = DefaultTemplate
	}
	return &Builder{template: template}
}

// Template returns the default template in use.
func (b *Builder) Template() string {
	return b.template
}

// Build renders the prompt. A non-blank override replaces the default
// template. Placeholders absent from the template are skipped.
func (b *Builder) Build(question, scene, override string) string {
	tmpl := b.template
	if strings.TrimSpace(override) != "" {
		tmpl = override
	}

	pairs := make([]string, 0, 4*len(placeholders))
	for _, p := range placeholders {
		pairs = append(pairs, p[0], question, p[1], scene)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}
