// Package script turns raw completion text into a renderable scene script:
// it extracts the code block and applies textual repairs for mistakes the
// model is known to make.
package script

import (
	"fmt"
	"regexp"
	"strings"
)

// Origin records where an extracted script came from.
type Origin string

const (
	OriginFenced      Origin = "fenced"
	OriginRaw         Origin = "raw"
	OriginPlaceholder Origin = "placeholder"
)

// PlaceholderMessage is rendered when the completion contained no code.
const PlaceholderMessage = "Please provide a more specific math concept to visualize."

// Extraction is the script pulled from a completion.
type Extraction struct {
	Source string
	Origin Origin
}

// Extract returns the first fenced python block in raw, trimmed. Without a
// fence, raw itself is returned when it opens with an import statement;
// anything else is treated as conversational and replaced by a placeholder
// scene named scene.
func Extract(raw, scene string) Extraction {
	if body, ok := firstFencedBlock(raw); ok {
		return Extraction{Source: body, Origin: OriginFenced}
	}

	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "from manim import") || strings.HasPrefix(trimmed, "import") {
		return Extraction{Source: trimmed, Origin: OriginRaw}
	}

	return Extraction{Source: Placeholder(scene), Origin: OriginPlaceholder}
}

// Placeholder returns a minimal scene that shows PlaceholderMessage.
func Placeholder(scene string) string {
	if scene == "" {
		scene = "GeneratedScene"
	}
	return fmt.Sprintf(`# No valid code was generated

from manim import *

class %s(Scene):
    def construct(self):
        self.add(Text(%q))
`, scene, PlaceholderMessage)
}

func isSourceTag(lang string) bool {
	switch strings.ToLower(lang) {
	case "python", "py", "python3":
		return true
	}
	return false
}

var (
	infoToken = regexp.MustCompile(`^[A-Za-z0-9_{}\-,.:=/"']+$`)
	codeStart = []string{"from ", "import ", "class ", "def ", "#"}
)

// isInfoString reports whether rest, the text following the language tag on
// a fence line, is fence metadata (showLineNumbers, title="x", {1,3}) rather
// than the first line of code.
func isInfoString(rest string) bool {
	for _, prefix := range codeStart {
		if strings.HasPrefix(rest, prefix) {
			return false
		}
	}
	for _, tok := range strings.Fields(rest) {
		if !infoToken.MatchString(tok) {
			return false
		}
	}
	return true
}

// firstFencedBlock scans for ``` fences whose opening line starts with a
// python language tag. Text after the tag on the same line is kept as code
// unless it reads as fence metadata. Blocks with other tags are skipped.
func firstFencedBlock(output string) (string, bool) {
	offset := 0
	for {
		idx := strings.Index(output[offset:], "```")
		if idx == -1 {
			return "", false
		}
		headerStart := offset + idx + 3

		closeIdx := strings.Index(output[headerStart:], "```")
		if closeIdx == -1 {
			return "", false
		}
		blockEnd := headerStart + closeIdx
		offset = blockEnd + 3

		block := output[headerStart:blockEnd]
		header, body, _ := strings.Cut(block, "\n")

		fields := strings.Fields(header)
		if len(fields) == 0 || !isSourceTag(fields[0]) {
			continue
		}
		rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(header), fields[0]))
		if rest != "" && !isInfoString(rest) {
			body = rest + "\n" + body
		}
		return strings.TrimSpace(body), true
	}
}
