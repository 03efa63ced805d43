package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/go-faster/errors"
)

// NegativeReview is the data behind a negative review alert.
type NegativeReview struct {
	BusinessName  string
	LocationTitle string
	Reviewer      string
	Rating        int
	Comment       string
	ReviewTime    time.Time
	DashboardURL  string
}

// DigestTask is one line of the weekly digest.
type DigestTask struct {
	Location    string
	Title       string
	Description string
	Priority    string
}

type WeeklyDigest struct {
	BusinessName string
	WeekStart    time.Time
	Tasks        []DigestTask
	DashboardURL string
}

var funcs = template.FuncMap{
	"stars": stars,
	"date":  func(t time.Time) string { return t.Format("Jan 2, 2006") },
}

var (
	alertHTML = template.Must(template.New("alert").Funcs(funcs).Parse(`<p>A new {{.Rating}}-star review was posted for <strong>{{.LocationTitle}}</strong>.</p>
<p>{{stars .Rating}} by {{.Reviewer}} on {{date .ReviewTime}}</p>
{{if .Comment}}<blockquote>{{.Comment}}</blockquote>{{end}}
<p><a href="{{.DashboardURL}}">Reply from the dashboard</a></p>`))

	alertText = texttemplate.Must(texttemplate.New("alert").Funcs(texttemplate.FuncMap(funcs)).Parse(`A new {{.Rating}}-star review was posted for {{.LocationTitle}}.
{{stars .Rating}} by {{.Reviewer}} on {{date .ReviewTime}}
{{if .Comment}}
"{{.Comment}}"
{{end}}
Reply from the dashboard: {{.DashboardURL}}
`))

	digestHTML = template.Must(template.New("digest").Funcs(funcs).Parse(`<p>Here is your plan for the week of {{date .WeekStart}}{{if .BusinessName}} for {{.BusinessName}}{{end}}.</p>
<ul>{{range .Tasks}}
<li><strong>[{{.Priority}}] {{.Title}}</strong>{{if .Location}} ({{.Location}}){{end}}<br>{{.Description}}</li>{{end}}
</ul>
<p><a href="{{.DashboardURL}}">Open the dashboard</a></p>`))

	digestText = texttemplate.Must(texttemplate.New("digest").Funcs(texttemplate.FuncMap(funcs)).Parse(`Your plan for the week of {{date .WeekStart}}{{if .BusinessName}} for {{.BusinessName}}{{end}}:
{{range .Tasks}}
- [{{.Priority}}] {{.Title}}{{if .Location}} ({{.Location}}){{end}}: {{.Description}}{{end}}

Open the dashboard: {{.DashboardURL}}
`))
)

func stars(n int) string {
	n = max(0, min(n, 5))
	return strings.Repeat("★", n) + strings.Repeat("☆", 5-n)
}

func render(to string, subject string, h *template.Template, t *texttemplate.Template, data any) (Message, error) {
	var hb, tb bytes.Buffer
	if err := h.Execute(&hb, data); err != nil {
		return Message{}, errors.Wrapf(err, "render %s html", h.Name())
	}
	if err := t.Execute(&tb, data); err != nil {
		return Message{}, errors.Wrapf(err, "render %s text", t.Name())
	}
	return Message{To: to, Subject: subject, HTML: hb.String(), Text: tb.String()}, nil
}

func NegativeReviewAlert(to string, r NegativeReview) (Message, error) {
	subject := fmt.Sprintf("New %d-star review for %s", r.Rating, r.LocationTitle)
	return render(to, subject, alertHTML, alertText, r)
}

func WeeklyDigestMessage(to string, d WeeklyDigest) (Message, error) {
	subject := fmt.Sprintf("Your %d tasks for the week of %s", len(d.Tasks), d.WeekStart.Format("Jan 2"))
	return render(to, subject, digestHTML, digestText, d)
}
