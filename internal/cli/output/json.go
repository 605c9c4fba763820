package output

import (
	"io"

	"github.com/goccy/go-json"
)

// JSONFormatter formats data as JSON.
type JSONFormatter struct{}

// Format writes data as indented JSON. URLs and selectors are printed as-is,
// without HTML escaping.
func (f *JSONFormatter) Format(w io.Writer, data any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	return encoder.Encode(data)
}
