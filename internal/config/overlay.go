package config

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// overlaySchema closes the set of fields an operator may override from a
// CUE file. Unknown fields are rejected.
const overlaySchema = `
prompt_template?: string
model?:           string
temperature?:     number & >=0 & <=2
cors_origins?: [...string]
`

// Overlay holds values decoded from MATHLENS_CONFIG_FILE. Nil fields keep
// the environment value.
type Overlay struct {
	PromptTemplate *string  `json:"prompt_template"`
	Model          *string  `json:"model"`
	Temperature    *float64 `json:"temperature"`
	CORSOrigins    []string `json:"cors_origins"`
}

// LoadOverlay compiles the CUE file at path, validates it against the
// overlay schema and decodes it.
func LoadOverlay(path string) (*Overlay, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseOverlay(path, content)
}

func parseOverlay(filename string, content []byte) (*Overlay, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString("close({" + overlaySchema + "})")
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile overlay schema: %w", err)
	}

	value := ctx.CompileBytes(content, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return nil, err
	}

	unified := schema.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, err
	}

	var o Overlay
	if err := unified.Decode(&o); err != nil {
		return nil, err
	}
	return &o, nil
}
