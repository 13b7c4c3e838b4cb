package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/windmill-io/windmill/internal/metadata"
)

func writeJSON(w io.Writer, v any) error {
	data, err := metadata.Serialize(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}

func moduleOf(dict map[string]any) string {
	props, _ := dict["properties"].(map[string]any)
	module, _ := props["module"].(string)
	return module
}

func formatDefault(v any) string {
	if v == nil {
		return "None"
	}
	if s, ok := v.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}
