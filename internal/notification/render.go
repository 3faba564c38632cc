package notification

import (
	"bytes"
	"fmt"
	"html/template"
	"strconv"

	"skillTrackerAPI/internal/snapshot"
	"skillTrackerAPI/internal/types/profile"
)

var funcs = template.FuncMap{
	"signed": func(m profile.Metric) string {
		v, ok := m.Value()
		if !ok {
			return "N/A"
		}
		if v > 0 {
			return "+" + strconv.Itoa(v)
		}
		return strconv.Itoa(v)
	},
}

var weeklyTmpl = template.Must(template.New("weekly").Funcs(funcs).Parse(`<html>
<body style="color:#333">
<p>Hello {{.Email}},</p>
<p>Here is how your week went:</p>
<ul>
{{- range .Changes}}
  <li>
    <strong>{{.Platform}} ({{.Username}})</strong>
    <ul>
      <li>Problems solved: {{.Current.ProblemsSolved}} ({{signed .ProblemsDelta}})</li>
      <li>Rating: {{.Current.Rating}} ({{signed .RatingDelta}})</li>
      <li>Contests attended: {{.Current.ContestsAttended}} ({{signed .ContestsDelta}})</li>
    </ul>
  </li>
{{- end}}
</ul>
<p>Across all subscribers this week: {{.TotalProblems}} problems solved, {{.TotalContests}} contests attended.</p>
<p>Best Regards,<br>Skill Tracker</p>
</body>
</html>`))

var dailyTmpl = template.Must(template.New("daily").Parse(`<html>
<body style="color:#333">
<p>Hello {{.Email}},</p>
<p>Here is your activity report:</p>
<ul>
{{- range .Entries}}
  <li>
    <strong>{{.Platform}} ({{.Username}})</strong>
    <ul>
    {{- if .Failed}}
      <li>Error fetching data.</li>
    {{- else}}
      <li>Problems Solved: {{.Stats.ProblemsSolved}}</li>
      <li>Rating: {{.Stats.Rating}}</li>
      <li>Contests Attended: {{.Stats.ContestsAttended}}</li>
    {{- end}}
    </ul>
  </li>
{{- end}}
</ul>
<p>Best Regards,<br>Skill Tracker</p>
</body>
</html>`))

type WeeklyReport struct {
	Email         string
	Changes       []snapshot.Change
	TotalProblems int
	TotalContests int
}

type DailyEntry struct {
	Platform profile.Platform
	Username string
	Stats    profile.Stats
	Failed   bool
}

type DailyReport struct {
	Email   string
	Entries []DailyEntry
}

func RenderWeekly(r WeeklyReport) (*Message, error) {
	var buf bytes.Buffer
	if err := weeklyTmpl.Execute(&buf, r); err != nil {
		return nil, fmt.Errorf("render weekly report: %w", err)
	}

	problems := 0
	for _, c := range r.Changes {
		problems += c.ProblemsDelta.Or(0)
	}
	return &Message{
		To:        r.Email,
		Subject:   "Your Weekly Coding Progress",
		HTML:      buf.String(),
		PushTitle: "Your weekly coding report",
		PushBody:  fmt.Sprintf("You solved %d problems this week.", problems),
		Data:      map[string]string{"type": "weekly_report"},
	}, nil
}

func RenderDaily(r DailyReport) (*Message, error) {
	var buf bytes.Buffer
	if err := dailyTmpl.Execute(&buf, r); err != nil {
		return nil, fmt.Errorf("render daily report: %w", err)
	}
	return &Message{
		To:        r.Email,
		Subject:   "Your Daily Coding Activity Report",
		HTML:      buf.String(),
		PushTitle: "Your daily coding report",
		PushBody:  fmt.Sprintf("Stats for %d platforms are in your inbox.", len(r.Entries)),
		Data:      map[string]string{"type": "daily_report"},
	}, nil
}
