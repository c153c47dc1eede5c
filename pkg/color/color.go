// Package color styles the CLI's section headers, tables and assembly errors.
package color

import (
	"os"

	"github.com/muesli/termenv"
)

var output = termenv.NewOutput(os.Stdout)

var profile = detect()

func detect() termenv.Profile {
	if os.Getenv("NO_COLOR") != "" {
		return termenv.Ascii
	}
	return output.EnvColorProfile()
}

// EnableColor forces styling on or off regardless of the terminal
func EnableColor(enable bool) {
	if !enable {
		profile = termenv.Ascii
		return
	}
	if profile == termenv.Ascii {
		profile = termenv.ANSI
	}
}

func IsColorEnabled() bool {
	return profile != termenv.Ascii
}

func paint(ansi, text string) string {
	if profile == termenv.Ascii {
		return text
	}
	return termenv.String(text).Foreground(profile.Color(ansi)).String()
}

func RedText(text string) string {
	return paint("1", text)
}

func BrightRedText(text string) string {
	return paint("9", text)
}

func GreenText(text string) string {
	return paint("2", text)
}

func YellowText(text string) string {
	return paint("3", text)
}

func CyanText(text string) string {
	return paint("6", text)
}

func GrayText(text string) string {
	return paint("8", text)
}
