package script

import (
	"strings"
	"testing"
)

func TestExtract_FencedBlock(t *testing.T) {
	raw := "Here is your animation:\n\n```python\n\nfrom manim import *\n\nclass Scene_1(Scene):\n    pass\n  \n```\nEnjoy!"

	got := Extract(raw, "Scene_1")
	if got.Origin != OriginFenced {
		t.Errorf("Origin = %q, want %q", got.Origin, OriginFenced)
	}
	want := "from manim import *\n\nclass Scene_1(Scene):\n    pass"
	if got.Source != want {
		t.Errorf("Source = %q, want %q", got.Source, want)
	}
	if strings.Contains(got.Source, "```") {
		t.Error("Source still contains fence markers")
	}
}

func TestExtract_FenceTags(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"py", "```py\nx = 1\n```", "x = 1"},
		{"python3", "```python3\nx = 2\n```", "x = 2"},
		{"upper case", "```Python\nx = 3\n```", "x = 3"},
		{"skips other languages", "```bash\nmanim -pql\n```\n```python\nx = 4\n```", "x = 4"},
		{"first block wins", "```python\nfirst\n```\n```python\nsecond\n```", "first"},
		{"info string after tag", "```python showLineNumbers\nx = 5\n```", "x = 5"},
		{"title attribute", "```py title=\"scene.py\" {1,3}\nx = 6\n```", "x = 6"},
		{"code on the fence line", "```python from manim import *\nclass S(Scene): pass```", "from manim import *\nclass S(Scene): pass"},
		{"import on the fence line", "```python import numpy as np\nx = 7\n```", "import numpy as np\nx = 7"},
		{"single line block", "```python print(Matrix([1, 2]))```", "print(Matrix([1, 2]))"},
		{"untagged block skipped", "```\nnot this\n```\n```python\nx = 8\n```", "x = 8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Extract(tt.raw, "Scene_x")
			if got.Origin != OriginFenced || got.Source != tt.want {
				t.Errorf("Extract() = %+v, want fenced %q", got, tt.want)
			}
		})
	}
}

func TestExtract_RawSourceFallback(t *testing.T) {
	tests := []string{
		"  from manim import *\nclass A(Scene): pass\n",
		"import numpy\nfrom manim import *",
	}
	for _, raw := range tests {
		got := Extract(raw, "Scene_x")
		if got.Origin != OriginRaw {
			t.Errorf("Extract(%q).Origin = %q, want %q", raw, got.Origin, OriginRaw)
		}
		if got.Source != strings.TrimSpace(raw) {
			t.Errorf("Extract(%q).Source = %q", raw, got.Source)
		}
	}
}

func TestExtract_UnterminatedFenceFallsBack(t *testing.T) {
	got := Extract("```python\nfrom manim import *", "Scene_x")
	if got.Origin != OriginPlaceholder {
		t.Errorf("Origin = %q, want %q", got.Origin, OriginPlaceholder)
	}
}

func TestExtract_ConversationalUsesPlaceholder(t *testing.T) {
	got := Extract("I'm sorry, could you clarify which matrix you mean?", "Scene_abc")
	if got.Origin != OriginPlaceholder {
		t.Fatalf("Origin = %q, want %q", got.Origin, OriginPlaceholder)
	}
	if got.Source != Placeholder("Scene_abc") {
		t.Errorf("Source = %q, want placeholder", got.Source)
	}
}

func TestPlaceholder_WellFormed(t *testing.T) {
	src := Placeholder("Scene_abc")

	for _, want := range []string{
		"from manim import *\n",
		"class Scene_abc(Scene):\n",
		"    def construct(self):\n",
		`        self.add(Text("` + PlaceholderMessage + `"))`,
	} {
		if !strings.Contains(src, want) {
			t.Errorf("placeholder missing %q:\n%s", want, src)
		}
	}

	// Parentheses and quotes must balance for the script to parse.
	if strings.Count(src, "(") != strings.Count(src, ")") {
		t.Error("unbalanced parentheses in placeholder")
	}
	if strings.Count(src, `"`)%2 != 0 {
		t.Error("unbalanced quotes in placeholder")
	}
	for _, line := range strings.Split(src, "\n") {
		indent := len(line) - len(strings.TrimLeft(line, " "))
		if indent%4 != 0 {
			t.Errorf("line %q is not indented by a multiple of 4", line)
		}
	}
}

func TestPlaceholder_DefaultSceneName(t *testing.T) {
	if !strings.Contains(Placeholder(""), "class GeneratedScene(Scene):") {
		t.Error("empty scene name should fall back to GeneratedScene")
	}
}
