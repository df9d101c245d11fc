// Package web holds the server-rendered pages and the echo renderer that
// executes them.
package web

import (
	"embed"
	"fmt"
	"html/template"
	"io"

	"github.com/labstack/echo/v4"
)

//go:embed templates/*.html
var templateFS embed.FS

// MenuItem is one entry of the navigation sidebar.
type MenuItem struct {
	Label  string
	Path   string
	Active bool
}

// Page is the data every template receives. Body holds page-specific data.
type Page struct {
	Title  string
	User   string
	Menu   []MenuItem
	Flash  string
	Error  string
	Status int
	Body   interface{}
}

// Renderer implements echo.Renderer over the embedded templates.
type Renderer struct {
	templates *template.Template
}

// NewRenderer parses every embedded template.
func NewRenderer() (*Renderer, error) {
	t, err := template.New("").ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Renderer{templates: t}, nil
}

// MustRenderer is NewRenderer for package initialisation and tests.
func MustRenderer() *Renderer {
	r, err := NewRenderer()
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Renderer) Render(w io.Writer, name string, data interface{}, _ echo.Context) error {
	return r.templates.ExecuteTemplate(w, name, data)
}
