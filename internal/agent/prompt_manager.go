package agent

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"text/template"
)

//go:embed prompts/*.md
var defaultPrompts embed.FS

// Prompt names. Each one is a markdown template under prompts/.
const (
	PromptPlanner     = "planner"
	PromptReplacement = "replacement"
	PromptVerifier    = "verifier"
)

var promptFuncs = template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}

// PromptManager renders prompt templates. A file named <name>.md in
// Directory overrides the built-in template of the same name.
type PromptManager struct {
	Directory string
}

func NewPromptManager(dir string) *PromptManager {
	return &PromptManager{Directory: dir}
}

func (pm *PromptManager) Render(name string, data any) (string, error) {
	src, err := pm.source(name)
	if err != nil {
		return "", err
	}
	tmpl, err := template.New(name).Funcs(promptFuncs).Option("missingkey=error").Parse(src)
	if err != nil {
		return "", fmt.Errorf("failed to parse %s prompt: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s prompt: %w", name, err)
	}
	return buf.String(), nil
}

func (pm *PromptManager) source(name string) (string, error) {
	file := name + ".md"
	if pm != nil && pm.Directory != "" {
		data, err := os.ReadFile(filepath.Join(pm.Directory, file))
		if err == nil {
			return string(data), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("failed to read %s prompt: %w", name, err)
		}
	}
	data, err := defaultPrompts.ReadFile("prompts/" + file)
	if err != nil {
		return "", fmt.Errorf("unknown prompt %q", name)
	}
	return string(data), nil
}
