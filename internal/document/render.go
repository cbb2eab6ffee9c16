package document

import (
	"embed"
	"encoding/json"
	"html/template"
	"io"
	"strconv"

	"github.com/rotisserie/eris"
)

//go:embed templates/page.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/page.html"))

type pageData struct {
	Title     string
	SessionID string
	Legend    any
	Config    template.JS
}

// Render writes doc as an HTML page for one session.
func Render(w io.Writer, doc *Document, sessionID string) error {
	cfg, err := json.Marshal(struct {
		*Document
		SessionID string `json:"session_id"`
	}{doc, sessionID})
	if err != nil {
		return eris.Wrap(err, "document: marshal config")
	}

	data := pageData{
		Title:     doc.Title,
		SessionID: sessionID,
		Legend:    doc.Legend,
		Config:    template.JS(cfg),
	}
	if err := pageTemplate.Execute(w, data); err != nil {
		return eris.Wrap(err, "document: render page")
	}
	return nil
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }
