package model

import "fmt"

// Theme selects the visual template used to render artifacts. It is a closed
// enumeration, one entry per supported language/editor combination.
type Theme string

const (
	// ThemeIDLE is the Python IDLE editor look.
	ThemeIDLE Theme = "idle"
	// ThemeVSCode is the VS Code dark look for Python.
	ThemeVSCode Theme = "vscode"
	// ThemeNotepad is the Windows Notepad look used for Java.
	ThemeNotepad Theme = "notepad"
	// ThemeCodeBlocks is the Code::Blocks look used for C.
	ThemeCodeBlocks Theme = "codeblocks"
	// ThemeHTML renders static pages in a browser frame.
	ThemeHTML Theme = "html"
	// ThemeNode is the VS Code look plus a browser frame for server responses.
	ThemeNode Theme = "node"
	// ThemeReact is the VS Code look plus browser frames per route.
	ThemeReact Theme = "react"
)

var themeLanguages = map[Theme]string{
	ThemeIDLE:       "python",
	ThemeVSCode:     "python",
	ThemeNotepad:    "java",
	ThemeCodeBlocks: "c",
	ThemeHTML:       "html",
	ThemeNode:       "javascript",
	ThemeReact:      "javascript",
}

// ParseTheme validates a theme name. Unknown themes fail, there is no
// silent fallback.
func ParseTheme(s string) (Theme, error) {
	t := Theme(s)
	if _, ok := themeLanguages[t]; !ok {
		return "", fmt.Errorf("unknown theme %q: %w", s, ErrNotValid)
	}
	return t, nil
}

// Language returns the language the theme highlights.
func (t Theme) Language() string { return themeLanguages[t] }

// ThemeForLanguage returns the default theme for a language.
func ThemeForLanguage(language string) Theme {
	switch language {
	case "java":
		return ThemeNotepad
	case "c":
		return ThemeCodeBlocks
	case "html":
		return ThemeHTML
	case "javascript", "node":
		return ThemeNode
	case "react":
		return ThemeReact
	default:
		return ThemeIDLE
	}
}
