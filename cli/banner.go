package cli

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const bannerDefaultWidth = 60

// PrintBanner renders a box-drawing banner around a title using the default width.
func PrintBanner(title string) {
	PrintBannerWidth(title, bannerDefaultWidth)
}

// PrintBannerWidth renders a box-drawing banner around title. The banner
// grows when the title does not fit.
func PrintBannerWidth(title string, width int) {
	fmt.Print(renderBanner(title, width))
}

func renderBanner(title string, width int) string {
	if width < 10 {
		width = bannerDefaultWidth
	}

	inner := width - 2
	if n := utf8.RuneCountInString(title) + 2; n > inner {
		inner = n
	}

	edge := strings.Repeat("═", inner)
	var b strings.Builder
	fmt.Fprintf(&b, "╔%s╗\n", edge)
	fmt.Fprintf(&b, "║%s║\n", padCenter(title, inner))
	fmt.Fprintf(&b, "╚%s╝\n", edge)
	return b.String()
}

// padCenter centres text in width columns, counting runes.
func padCenter(text string, width int) string {
	n := utf8.RuneCountInString(text)
	if n >= width {
		return string([]rune(text)[:width])
	}
	left := (width - n) / 2
	return strings.Repeat(" ", left) + text + strings.Repeat(" ", width-n-left)
}
