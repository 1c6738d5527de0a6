// Package views embeds the server rendered pages.
package views

import (
	"embed"
	"html/template"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Templates parses every page. Pages are addressed by file name, e.g. "waitlist.html".
func Templates() *template.Template {
	return template.Must(
		template.New("").
			Funcs(template.FuncMap{
				"seq": func(n int) []int {
					out := make([]int, n)
					for i := range out {
						out[i] = i
					}
					return out
				},
			}).
			ParseFS(templatesFS, "templates/*.html"),
	)
}
