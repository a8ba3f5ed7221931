package board

type Color string

const NoColor Color = ""

const DefaultTheme = "classic"

var themes = map[string][]Color{
	"classic": {"red", "orange", "yellow", "green", "blue", "purple"},
	"gems":    {"ruby", "emerald", "sapphire", "topaz", "amethyst", "diamond"},
	"fruits":  {"apple", "banana", "grape", "orange", "cherry"},
}

// Palette returns a copy of the colors for theme. An empty theme means DefaultTheme.
func Palette(theme string) ([]Color, bool) {
	if theme == "" {
		theme = DefaultTheme
	}
	p, ok := themes[theme]
	if !ok {
		return nil, false
	}
	return append([]Color(nil), p...), true
}

func Themes() []string {
	out := make([]string, 0, len(themes))
	for name := range themes {
		out = append(out, name)
	}
	return out
}
