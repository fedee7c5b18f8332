package render

import (
	"fmt"

	"github.com/labshot/labshot/internal/model"
)

// themeSpec is the visual template behind one theme. Themes are a closed set,
// unknown themes fail instead of falling back.
type themeSpec struct {
	// TitleFormat formats the editor window title from the file name.
	TitleFormat string
	// ChromaStyle is the syntax highlight style name.
	ChromaStyle string
	// TerminalTitle is the console pane window title.
	TerminalTitle string
	// Dark switches the pane chrome between light and dark variants.
	Dark bool
}

var themeSpecs = map[model.Theme]themeSpec{
	model.ThemeIDLE: {
		TitleFormat:   "%s - IDLE 3.12",
		ChromaStyle:   "friendly",
		TerminalTitle: "IDLE Shell 3.12",
	},
	model.ThemeVSCode: {
		TitleFormat:   "%s - Visual Studio Code",
		ChromaStyle:   "monokai",
		TerminalTitle: "Terminal",
		Dark:          true,
	},
	model.ThemeNotepad: {
		TitleFormat:   "%s - Notepad",
		ChromaStyle:   "vs",
		TerminalTitle: "Command Prompt",
	},
	model.ThemeCodeBlocks: {
		TitleFormat:   "%s [Code::Blocks]",
		ChromaStyle:   "vs",
		TerminalTitle: "Command Prompt",
	},
	model.ThemeHTML: {
		TitleFormat:   "%s - Visual Studio Code",
		ChromaStyle:   "monokai",
		TerminalTitle: "Terminal",
		Dark:          true,
	},
	model.ThemeNode: {
		TitleFormat:   "%s - Visual Studio Code",
		ChromaStyle:   "monokai",
		TerminalTitle: "Terminal",
		Dark:          true,
	},
	model.ThemeReact: {
		TitleFormat:   "%s - Visual Studio Code",
		ChromaStyle:   "monokai",
		TerminalTitle: "Terminal",
		Dark:          true,
	},
}

func specFor(theme model.Theme) (themeSpec, error) {
	spec, ok := themeSpecs[theme]
	if !ok {
		return themeSpec{}, fmt.Errorf("unknown theme %q: %w", theme, model.ErrNotValid)
	}
	return spec, nil
}
