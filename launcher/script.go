package launcher

import (
	"fmt"
	"os"
	"strings"
	"text/template"

	sprig "github.com/go-task/slim-sprig/v3"
	"github.com/samber/lo"
)

// ScriptData is exposed to templated init scripts.
type ScriptData struct {
	Node      string
	ID        string
	Cloud     string
	Address   string
	Labels    []string
	RemoteFS  string
	Executors int
	Env       map[string]string
}

// RenderScript evaluates an init script template with sprig functions.
func RenderScript(source string, data ScriptData) (string, error) {
	tmpl, err := template.New("init").Funcs(sprig.TxtFuncMap()).Option("missingkey=error").Parse(source)
	if err != nil {
		return "", fmt.Errorf("failed to parse init script: %w", err)
	}

	if data.Env == nil {
		data.Env = lo.SliceToMap(os.Environ(), func(env string) (key, val string) { key, val, _ = strings.Cut(env, "="); return })
	}

	var output strings.Builder
	if err := tmpl.Execute(&output, data); err != nil {
		return "", fmt.Errorf("failed to render init script: %w", err)
	}
	return output.String(), nil
}
