package guard

import (
	"net/http"
	"strings"

	"github.com/mssola/useragent"
)

// botUserAgentMarkers cubre clientes que el parser no reconoce como bots.
var botUserAgentMarkers = []string{
	"bot", "crawler", "spider", "curl", "wget", "python-requests", "python-urllib",
	"httpclient", "scrapy", "headless", "phantomjs", "go-http-client",
}

// CheckHeaders devuelve avisos sobre cabeceras poco plausibles. Es solo informativo.
func CheckHeaders(h http.Header) []string {
	var warnings []string

	ua := strings.TrimSpace(h.Get("User-Agent"))
	if len(ua) < 10 {
		warnings = append(warnings, "missing_or_short_user_agent")
	}
	if ua != "" && isBotUserAgent(ua) {
		warnings = append(warnings, "bot_user_agent")
	}

	if strings.TrimSpace(h.Get("Accept-Language")) == "" {
		warnings = append(warnings, "missing_accept_language")
	}

	accept := strings.ToLower(h.Get("Accept"))
	if !strings.Contains(accept, "html") && !strings.Contains(accept, "json") {
		warnings = append(warnings, "unexpected_accept")
	}
	return warnings
}

func isBotUserAgent(ua string) bool {
	if useragent.New(ua).Bot() {
		return true
	}
	lower := strings.ToLower(ua)
	for _, marker := range botUserAgentMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
