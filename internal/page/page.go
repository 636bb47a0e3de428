// Package page renders the browser scan UI. It only knows the event name;
// scans go back to the listener's /scan route.
package page

import (
	"embed"
	"html/template"
	"io"
	"time"
)

//go:embed templates/scan.html
var templates embed.FS

// DefaultResetDelay is how long a scan result stays on screen.
const DefaultResetDelay = 3 * time.Second

type Renderer struct {
	tmpl       *template.Template
	resetDelay time.Duration
}

func New(resetDelay time.Duration) (*Renderer, error) {
	tmpl, err := template.ParseFS(templates, "templates/scan.html")
	if err != nil {
		return nil, err
	}
	if resetDelay <= 0 {
		resetDelay = DefaultResetDelay
	}
	return &Renderer{tmpl: tmpl, resetDelay: resetDelay}, nil
}

// Render writes the scan page for event.
func (r *Renderer) Render(w io.Writer, event string) error {
	return r.tmpl.ExecuteTemplate(w, "scan.html", struct {
		Event        string
		ResetDelayMs int64
	}{
		Event:        event,
		ResetDelayMs: r.resetDelay.Milliseconds(),
	})
}
