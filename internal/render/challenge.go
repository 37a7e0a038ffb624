package render

import "strings"

// challengeTitlePhrases are title substrings that, combined with a 503/429
// status, mark a rendered page as an interstitial challenge rather than
// real content (spec §4.7).
var challengeTitlePhrases = []string{
	"just a moment",
	"attention required",
	"checking your browser",
	"verifying you are",
	"security check",
	"please wait",
	"access denied",
}

// challengeDOMMarkers are known challenge-page DOM fingerprints (selectors
// or identifiers observed in their rendered markup).
var challengeDOMMarkers = []string{
	"cf-challenge-running",
	"cf-browser-verification",
	"g-recaptcha",
	"hcaptcha",
	"px-captcha",
	"challenge-form",
}

// detectChallenge reports whether the rendered page looks like a bot
// challenge/interstitial: a 503 or 429 status combined with a title phrase,
// or any known DOM marker present in the serialized document.
func detectChallenge(statusCode int, title string, domHTML string) bool {
	if statusCode == 503 || statusCode == 429 {
		lowerTitle := strings.ToLower(title)
		for _, phrase := range challengeTitlePhrases {
			if strings.Contains(lowerTitle, phrase) {
				return true
			}
		}
	}
	lowerDOM := strings.ToLower(domHTML)
	for _, marker := range challengeDOMMarkers {
		if strings.Contains(lowerDOM, marker) {
			return true
		}
	}
	return false
}
