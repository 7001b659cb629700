package guard

import (
	"net/http"
	"testing"
)

func TestClientID(t *testing.T) {
	cases := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"forwarded chain first hop", map[string]string{"X-Forwarded-For": " 203.0.113.7 , 10.0.0.1", "X-Real-IP": "10.0.0.2"}, "203.0.113.7"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.4", "CF-Connecting-IP": "192.0.2.9"}, "198.51.100.4"},
		{"cdn header", map[string]string{"CF-Connecting-IP": "192.0.2.9"}, "192.0.2.9"},
		{"empty forwarded entries", map[string]string{"X-Forwarded-For": " , "}, LoopbackClientID},
		{"nothing", nil, LoopbackClientID},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := http.Header{}
			for k, v := range tc.headers {
				h.Set(k, v)
			}
			if got := ClientID(h); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestCheckHeaders(t *testing.T) {
	browser := http.Header{}
	browser.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0")
	browser.Set("Accept-Language", "it-IT,it;q=0.9")
	browser.Set("Accept", "text/html,application/xhtml+xml")
	if w := CheckHeaders(browser); len(w) != 0 {
		t.Fatalf("expected no warnings for browser, got %v", w)
	}

	script := http.Header{}
	script.Set("User-Agent", "python-requests/2.31.0")
	script.Set("Accept", "*/*")
	w := CheckHeaders(script)
	want := map[string]bool{"bot_user_agent": true, "missing_accept_language": true, "unexpected_accept": true}
	if len(w) != len(want) {
		t.Fatalf("unexpected warnings %v", w)
	}
	for _, warning := range w {
		if !want[warning] {
			t.Fatalf("unexpected warning %q", warning)
		}
	}

	if w := CheckHeaders(http.Header{}); len(w) != 3 {
		t.Fatalf("expected 3 warnings for empty headers, got %v", w)
	}
}

func TestIsBotUserAgent(t *testing.T) {
	cases := []struct {
		ua   string
		want bool
	}{
		{"Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)", true},
		{"Java/1.8.0_292", true},
		{"curl/8.4.0", true},
		{"Mozilla/5.0 HeadlessChrome/120", true},
		{"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36", false},
		{"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1", false},
	}
	for _, tc := range cases {
		if got := isBotUserAgent(tc.ua); got != tc.want {
			t.Fatalf("isBotUserAgent(%q) = %v, want %v", tc.ua, got, tc.want)
		}
	}
}
