package html

import (
	_ "embed"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/raphi011/testops/internal/model"
)

//go:embed run.tmpl
var runTemplate string

//go:embed runs.tmpl
var runsTemplate string

var templatesByName map[string]*template.Template

func init() {
	templatesByName = make(map[string]*template.Template)

	templates := []struct {
		name     string
		template string
	}{
		{name: "run", template: runTemplate},
		{name: "runs", template: runsTemplate},
	}

	funcs := template.FuncMap{
		"ago":      func(t time.Time) string { return FormatRelativeTime(t, time.Now()) },
		"duration": formatDuration,
	}

	for _, t := range templates {
		template, err := template.New(t.name).Funcs(funcs).Parse(t.template)
		if err != nil {
			panic(fmt.Sprintf("unable to parse html template %s: %v", t.name, err))
		}

		templatesByName[t.name] = template
	}
}

type runPage struct {
	model.Run
	Counts map[model.Status]int
}

func RenderRun(run model.Run, w io.Writer) error {
	return templatesByName["run"].Execute(w, runPage{Run: run, Counts: run.Counts()})
}

func RenderRuns(runs []model.Run, w io.Writer) error {
	return templatesByName["runs"].Execute(w, runs)
}

// FormatRelativeTime formats t relative to now, falling back to the date
// for anything older than a week.
func FormatRelativeTime(t, now time.Time) string {
	diff := now.Sub(t)

	if diff < 0 {
		diff = -diff
	}

	if diff < time.Minute {
		return fmt.Sprintf("%d s ago", int(diff.Seconds()))
	}

	if diff < time.Hour {
		return fmt.Sprintf("%d min ago", int(diff.Minutes()))
	}

	if diff < 24*time.Hour {
		return fmt.Sprintf("%d h ago", int(diff.Hours()))
	}

	if diff < 7*24*time.Hour {
		days := int(diff.Hours() / 24)
		return fmt.Sprintf("%d day%s ago", days, pluralize(days))
	}

	return t.Format("Jan 2")
}

func formatDuration(ms int64) string {
	return (time.Duration(ms) * time.Millisecond).String()
}

func pluralize(n int) string {
	if n > 1 {
		return "s"
	}
	return ""
}
