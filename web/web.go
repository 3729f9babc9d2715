// Package web embeds the HTML pages and the browser script of the OCR UI.
package web

import (
	"embed"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/rotisserie/eris"
)

//go:embed templates/*.html static/*
var files embed.FS

// Templates parses the page templates.
func Templates() (*template.Template, error) {
	t, err := template.ParseFS(files, "templates/*.html")
	if err != nil {
		return nil, eris.Wrap(err, "web: parse templates")
	}
	return t, nil
}

// Static serves the files under static/.
func Static() http.FileSystem {
	sub, err := fs.Sub(files, "static")
	if err != nil {
		// static/ is embedded at build time
		panic(err)
	}
	return http.FS(sub)
}
