package banner

import (
	"github.com/pterm/pterm"
	"github.com/pterm/pterm/putils"
)

// Version of the sitestats server
const Version = "0.1.0"

func Print() {
	ptermLogo, _ := pterm.DefaultBigText.WithLetters(
		putils.LettersFromStringWithRGB("Site", pterm.NewRGB(46, 134, 222)),
		putils.LettersFromStringWithRGB("Stats", pterm.NewRGB(0, 0, 0))).
		Srender()

	pterm.DefaultCenter.Print(ptermLogo)

	pterm.DefaultCenter.Print(
		pterm.DefaultHeader.
			WithFullWidth().
			WithBackgroundStyle(pterm.NewStyle(pterm.BgLightBlue)).
			WithMargin(5).
			Sprint(pterm.White("sitestats - Visit Analytics")),
	)

	pterm.Info.Println(
		"Records page visits and serves aggregated reports over HTTP." +
			"\nDevices, locations, hourly patterns and trends from a single visit log." +
			"\nVersion " + Version + ".",
	)
}
