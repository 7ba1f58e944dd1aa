// Package ansicolor holds the escape codes used by the pretty log writer.
package ansicolor

import (
	"os"
	"runtime"
)

var Reset = "\033[0m"
var Bold = "\033[1m"
var Faint = "\033[2m"
var Underline = "\033[4m"

var Red = "\033[31m"
var Green = "\033[32m"
var Yellow = "\033[33m"
var Blue = "\033[34m"
var Purple = "\033[35m"
var Cyan = "\033[36m"
var Gray = "\033[37m"

var BgRed = "\033[41m"
var BgGreen = "\033[42m"
var BgYellow = "\033[43m"
var BgBlue = "\033[44m"

func init() {
	// https://no-color.org/
	if _, noColor := os.LookupEnv("NO_COLOR"); noColor || runtime.GOOS == "windows" {
		Disable()
	}
}

func Disable() {
	for _, code := range []*string{
		&Reset, &Bold, &Faint, &Underline,
		&Red, &Green, &Yellow, &Blue, &Purple, &Cyan, &Gray,
		&BgRed, &BgGreen, &BgYellow, &BgBlue,
	} {
		*code = ""
	}
}
