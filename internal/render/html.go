package render

import (
	"fmt"
	"html/template"
	"strings"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// Pane HTML is a pure function of its inputs so rendered artifacts can be
// compared byte for byte in snapshot tests.

var paneTemplate = template.Must(template.New("pane").Parse(`<!doctype html>
<html>
<head>
<meta charset="utf-8" />
<title>{{.Title}}</title>
<style>
html, body { margin: 0; padding: 0; background: {{.PageBG}}; }
.window { width: 100%; min-height: 100vh; background: {{.BodyBG}}; }
.titlebar { height: 34px; background: {{.ChromeBG}}; color: {{.ChromeFG}}; display: flex; align-items: center; padding: 0 12px; font-family: "Segoe UI", system-ui, sans-serif; font-size: 13px; border-bottom: 1px solid {{.ChromeBorder}}; }
.titlebar .controls { margin-left: auto; letter-spacing: 6px; }
.content { padding: 14px 16px; }
.content pre { margin: 0; font-family: Consolas, "Courier New", monospace; font-size: 14px; line-height: 1.5; white-space: pre-wrap; color: {{.BodyFG}}; }
</style>
</head>
<body>
<div class="window">
  <div class="titlebar"><span>{{.Title}}</span><span class="controls">&#8212; &#9633; &#10005;</span></div>
  <div class="content">{{.Body}}</div>
</div>
</body>
</html>
`))

var browserTemplate = template.Must(template.New("browser").Parse(`<!doctype html>
<html>
<head>
<meta charset="utf-8" />
<title>Browser Output</title>
<style>
html, body { margin: 0; padding: 0; background: #ffffff; font-family: system-ui, "Segoe UI", Roboto, Arial, sans-serif; }
.window { width: 100%; min-height: 100vh; }
.topbar { height: 44px; background: #f3f3f3; border-bottom: 1px solid #e5e7eb; display: flex; align-items: center; gap: 10px; padding: 0 10px; }
.addr { flex: 1; height: 30px; border-radius: 16px; background: #ffffff; border: 1px solid #d1d5db; display: flex; align-items: center; padding: 0 12px; font-size: 12px; color: #111827; white-space: nowrap; overflow: hidden; text-overflow: ellipsis; }
.addr .lock { margin-right: 8px; color: #16a34a; }
.content { padding: 18px; }
.content pre.plain { margin: 0; padding: 14px; background: #ffffff; color: #111827; border: 1px solid #e5e7eb; border-radius: 6px; font-family: Consolas, monospace; font-size: 13px; line-height: 1.45; white-space: pre-wrap; }
</style>
</head>
<body>
<div class="window">
  <div class="topbar"><div class="addr"><span class="lock">&#128274;</span>{{.URL}}</div></div>
  <div class="content">{{.Body}}</div>
</div>
</body>
</html>
`))

type paneData struct {
	Title        string
	Body         template.HTML
	PageBG       string
	BodyBG       string
	BodyFG       string
	ChromeBG     string
	ChromeFG     string
	ChromeBorder string
}

type browserData struct {
	URL  string
	Body template.HTML
}

func (d *paneData) applyChrome(dark bool) {
	if dark {
		d.PageBG = "#1e1e1e"
		d.BodyBG = "#1e1e1e"
		d.BodyFG = "#d4d4d4"
		d.ChromeBG = "#323233"
		d.ChromeFG = "#cccccc"
		d.ChromeBorder = "#252526"
		return
	}
	d.PageBG = "#f0f0f0"
	d.BodyBG = "#ffffff"
	d.BodyFG = "#111111"
	d.ChromeBG = "#e8e8e8"
	d.ChromeFG = "#222222"
	d.ChromeBorder = "#cccccc"
}

// codePaneHTML renders a syntax-highlighted editor window.
func codePaneHTML(source, language, filename string, spec themeSpec) (string, error) {
	highlighted, err := highlight(source, language, spec.ChromaStyle)
	if err != nil {
		return "", err
	}

	data := paneData{
		Title: fmt.Sprintf(spec.TitleFormat, filename),
		Body:  template.HTML(highlighted), //nolint:gosec // chroma output is escaped by the formatter.
	}
	data.applyChrome(spec.Dark)

	var sb strings.Builder
	if err := paneTemplate.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("could not execute pane template: %w", err)
	}
	return sb.String(), nil
}

// terminalPaneHTML renders captured output as a console window.
func terminalPaneHTML(output string, spec themeSpec) (string, error) {
	var body strings.Builder
	if err := template.Must(template.New("t").Parse(`<pre>{{.}}</pre>`)).Execute(&body, output); err != nil {
		return "", fmt.Errorf("could not escape terminal output: %w", err)
	}

	data := paneData{
		Title: spec.TerminalTitle,
		Body:  template.HTML(body.String()), //nolint:gosec // escaped right above.
	}
	// Consoles are dark in every theme.
	data.applyChrome(true)

	var sb strings.Builder
	if err := paneTemplate.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("could not execute pane template: %w", err)
	}
	return sb.String(), nil
}

// browserPaneHTML frames a server response or static page in a browser
// window. HTML bodies are embedded as-is, anything else goes inside a <pre>.
func browserPaneHTML(body, url string) (string, error) {
	var rendered string
	if looksLikeHTML(body) {
		rendered = body
	} else {
		var escaped strings.Builder
		if err := template.Must(template.New("b").Parse(`<pre class="plain">{{.}}</pre>`)).Execute(&escaped, body); err != nil {
			return "", fmt.Errorf("could not escape response body: %w", err)
		}
		rendered = escaped.String()
	}

	var sb strings.Builder
	err := browserTemplate.Execute(&sb, browserData{
		URL:  url,
		Body: template.HTML(rendered), //nolint:gosec // static pages are the content being screenshotted.
	})
	if err != nil {
		return "", fmt.Errorf("could not execute browser template: %w", err)
	}
	return sb.String(), nil
}

func looksLikeHTML(body string) bool {
	lowered := strings.ToLower(body)
	for _, marker := range []string{"<!doctype", "<html", "<head", "<body", "</"} {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

func highlight(source, language, styleName string) (string, error) {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := styles.Get(styleName)
	if style == nil {
		style = styles.Fallback
	}

	iterator, err := lexer.Tokenise(nil, source)
	if err != nil {
		return "", fmt.Errorf("could not tokenise source: %w", err)
	}

	formatter := chromahtml.New(chromahtml.WithLineNumbers(true), chromahtml.TabWidth(4))
	var sb strings.Builder
	if err := formatter.Format(&sb, style, iterator); err != nil {
		return "", fmt.Errorf("could not format source: %w", err)
	}

	return sb.String(), nil
}
