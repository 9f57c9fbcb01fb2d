package infra

import (
	"fmt"
)

// ANSI Color Codes
const (
	ColorReset   = "\033[0m"
	ColorRed     = "\033[31m"
	ColorGreen   = "\033[32m"
	ColorYellow  = "\033[33m"
	ColorBlue    = "\033[34m"
	ColorMagenta = "\033[35m"
	ColorCyan    = "\033[36m"
)

// PrintBanner displays the startup banner with the active RFQ parameters.
func PrintBanner(cfg *Config) {
	color := ColorCyan
	if cfg.Auth.SharedSecret == "" {
		color = ColorYellow
	}

	fmt.Println()
	fmt.Printf("%s###########################################################%s\n", color, ColorReset)
	fmt.Printf("%s#                                                         #%s\n", color, ColorReset)
	fmt.Printf("%s#                ⚡ Crest RFQ Node                         #%s\n", color, ColorReset)
	fmt.Printf("%s#                                                         #%s\n", color, ColorReset)
	fmt.Printf("%s#   VERSION: %-36s #%s\n", color, cfg.App.Version, ColorReset)
	fmt.Printf("%s#   CHAIN:   %-36d #%s\n", color, cfg.Settlement.ChainID, ColorReset)
	fmt.Printf("%s#   WINDOW:  %-36s #%s\n", color, fmt.Sprintf("%d ms", cfg.RFQ.WindowMS), ColorReset)
	fmt.Printf("%s#   MAKERS:  %-36d #%s\n", color, len(cfg.Makers), ColorReset)
	fmt.Printf("%s#                                                         #%s\n", color, ColorReset)

	if cfg.Auth.SharedSecret == "" {
		fmt.Printf("%s#   ⚠️  WARNING: NO AUTH SECRET CONFIGURED  ⚠️            #%s\n", ColorYellow, ColorReset)
		fmt.Printf("%s#   MAKER CONNECTIONS WILL NOT BE AUTHENTICATED           #%s\n", ColorYellow, ColorReset)
	}

	fmt.Printf("%s###########################################################%s\n", color, ColorReset)
	fmt.Println()
}
