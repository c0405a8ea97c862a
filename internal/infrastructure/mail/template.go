package mail

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"IncidentScanner/internal/domain"
	"IncidentScanner/internal/ports"
)

var incidentTemplate = template.Must(template.New("incident").Parse(`<html>
  <head>
    <style>
      body { font-family: Calibri, sans-serif; background:#f9f9f9; padding:20px; color:#333; }
      .container { background:#fff; padding:20px; border-radius:8px; box-shadow:0 2px 4px rgba(0,0,0,0.1); }
      .logo { text-align:center; background-color:#EFEEEC; padding:10px 20px; }
      .content { padding: 20px; }
      .footer { margin-top:20px; font-size:12px; color:#777; text-align:center; }
      .image-container { text-align:center; margin:20px 0; }
    </style>
  </head>
  <body>
    <div class="container">
      {{- if .LogoURL }}
      <div class="logo"><img src="{{ .LogoURL }}" alt="Logo" height="100"></div>
      {{- end }}
      <div class="content">
        <p><em>Security incident notification</em></p>
        <p><strong>Vendor Product:</strong> {{ .Incident.VendorKey }} {{ .Incident.Product }}</p>
        <p><strong>Published Date:</strong> {{ .Published }}</p>
        <p><strong>Incident Type:</strong> {{ .Incident.IncidentType }}</p>
        <p><strong>Status:</strong> {{ .Incident.Status }}</p>
        <p><strong>Affected Service:</strong> {{ .Incident.AffectedService }}</p>
        <p><strong>Potentially Impacted Data:</strong> {{ .Incident.PotentiallyImpactedData }}</p>
        <p><strong>Exploitation:</strong> {{ .Incident.ExploitDescription }}</p>
        <p><strong>Summary:</strong> {{ .Incident.Summary }}</p>
        {{- if .Incident.ImageURL }}
        <div class="image-container">
          <img src="{{ .Incident.ImageURL }}" alt="Image" style="max-width:50%; border-radius:8px;">
        </div>
        {{- end }}
        <p>Reference URL: <a href="{{ .Incident.SourceURL }}">{{ .Incident.SourceURL }}</a></p>
        <p class="footer">This email was sent for {{ .Incident.VendorKey }} alert.</p>
      </div>
    </div>
  </body>
</html>`))

// Renderer turns incidents into addressed messages.
type Renderer struct {
	logoURL string
}

// NewRenderer sets the optional banner logo.
func NewRenderer(logoURL string) *Renderer {
	return &Renderer{logoURL: logoURL}
}

// Subject is "{sourceLabel}: {title}", or the title alone without a label.
func Subject(incident domain.Incident) string {
	if incident.SourceLabel == "" {
		return incident.Title
	}
	return fmt.Sprintf("%s: %s", incident.SourceLabel, incident.Title)
}

// Render builds the message for one recipient.
func (r *Renderer) Render(incident domain.Incident, recipient string) (ports.Email, error) {
	var buf bytes.Buffer
	err := incidentTemplate.Execute(&buf, struct {
		Incident  domain.Incident
		Published string
		LogoURL   string
	}{
		Incident:  incident,
		Published: incident.PublishedAt.UTC().Format(time.RFC1123),
		LogoURL:   r.logoURL,
	})
	if err != nil {
		return ports.Email{}, fmt.Errorf("render incident email: %w", err)
	}

	return ports.Email{
		To:      recipient,
		Subject: Subject(incident),
		HTML:    buf.String(),
	}, nil
}
