package guard

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Weights son los pesos aditivos del scorer.
type Weights struct {
	DisposableDomain  int
	BotEmail          int
	BotName           int
	IdenticalNames    int
	ShortName         int
	InvalidNameChars  int
	InvalidFiscalCode int
	SuspiciousKeyword int
}

func DefaultWeights() Weights {
	return Weights{
		DisposableDomain:  30,
		BotEmail:          20,
		BotName:           25,
		IdenticalNames:    15,
		ShortName:         20,
		InvalidNameChars:  15,
		InvalidFiscalCode: 10,
		SuspiciousKeyword: 10,
	}
}

const (
	DefaultSpamThreshold   = 50
	DefaultReviewThreshold = 25
)

var defaultDisposableDomains = []string{
	"guerrillamail.com", "guerrillamail.net", "guerrillamail.org", "sharklasers.com",
	"mailinator.com", "10minutemail.com", "tempmail.com", "temp-mail.org", "yopmail.com",
	"trashmail.com", "throwawaymail.com", "dispostable.com", "maildrop.cc", "fakeinbox.com",
	"getnada.com", "mintemail.com", "spamgourmet.com", "mohmal.com", "emailondeck.com",
	"mailnesia.com",
}

var defaultKeywords = []string{
	"viagra", "casino", "crypto", "bitcoin", "porn", "xxx", "loan", "spam", "bot", "forex",
}

var (
	trailingDigitsRe = regexp.MustCompile(`\d{3,}$`)
	lettersDigitsRe  = regexp.MustCompile(`^[A-Za-z]+\d+$`)
	fewLettersRe     = regexp.MustCompile(`^[A-Za-z]{1,3}\d+`)
	genericPrefixRe  = regexp.MustCompile(`(?i)^(test|user|admin)`)
	digitRunRe       = regexp.MustCompile(`\d{3,}`)
	singleLetterRe   = regexp.MustCompile(`^[A-Za-z]$`)
	fiscalCodeRe     = regexp.MustCompile(`^[A-Z]{6}[0-9LMNPQRSTUV]{2}[ABCDEHLMPRST][0-9LMNPQRSTUV]{2}[A-Z][0-9LMNPQRSTUV]{3}[A-Z]$`)
)

// SpamInput son los campos de registro que puntua el scorer.
type SpamInput struct {
	Email      string
	FirstName  string
	LastName   string
	FiscalCode string
}

// SpamResult es la puntuacion con sus motivos, en orden de evaluacion.
type SpamResult struct {
	Score       int      `json:"score"`
	Reasons     []string `json:"reasons"`
	IsSpam      bool     `json:"is_spam"`
	NeedsReview bool     `json:"needs_review"`
}

// SpamScorer es una funcion pura sobre los campos de registro; no guarda estado.
type SpamScorer struct {
	weights         Weights
	threshold       int
	reviewThreshold int
	disposable      map[string]struct{}
	keywords        []string
}

type SpamOption func(*SpamScorer)

func WithWeights(w Weights) SpamOption {
	return func(s *SpamScorer) {
		s.weights = w
	}
}

func WithThresholds(spam, review int) SpamOption {
	return func(s *SpamScorer) {
		if spam > 0 {
			s.threshold = spam
		}
		if review > 0 {
			s.reviewThreshold = review
		}
	}
}

func WithDisposableDomains(domains ...string) SpamOption {
	return func(s *SpamScorer) {
		for _, d := range domains {
			s.disposable[strings.ToLower(strings.TrimSpace(d))] = struct{}{}
		}
	}
}

func WithKeywords(keywords ...string) SpamOption {
	return func(s *SpamScorer) {
		s.keywords = append(s.keywords, keywords...)
	}
}

func NewSpamScorer(opts ...SpamOption) *SpamScorer {
	s := &SpamScorer{
		weights:         DefaultWeights(),
		threshold:       DefaultSpamThreshold,
		reviewThreshold: DefaultReviewThreshold,
		disposable:      make(map[string]struct{}, len(defaultDisposableDomains)),
		keywords:        append([]string(nil), defaultKeywords...),
	}
	for _, d := range defaultDisposableDomains {
		s.disposable[d] = struct{}{}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SpamScorer) Score(in SpamInput) SpamResult {
	var res SpamResult
	add := func(weight int, reason string) {
		res.Score += weight
		res.Reasons = append(res.Reasons, reason)
	}

	email := strings.ToLower(strings.TrimSpace(in.Email))
	local, domain := splitEmail(email)
	if s.isDisposable(domain) {
		add(s.weights.DisposableDomain, "disposable_email_domain")
	}
	if botShapedLocalPart(local) {
		add(s.weights.BotEmail, "suspicious_email_pattern")
	}

	first := strings.TrimSpace(in.FirstName)
	last := strings.TrimSpace(in.LastName)
	names := []struct {
		label string
		value string
	}{{"first_name", first}, {"last_name", last}}

	for _, n := range names {
		if botShapedName(n.value) {
			add(s.weights.BotName, "suspicious_"+n.label)
		}
	}
	if first != "" && strings.EqualFold(first, last) {
		add(s.weights.IdenticalNames, "identical_names")
	}
	for _, n := range names {
		if utf8.RuneCountInString(n.value) < 2 {
			add(s.weights.ShortName, "short_"+n.label)
		}
	}
	for _, n := range names {
		if n.value != "" && !isValidName(n.value) {
			add(s.weights.InvalidNameChars, "invalid_chars_"+n.label)
		}
	}

	if fc := strings.TrimSpace(in.FiscalCode); fc != "" && !IsFiscalCodeFormat(fc) {
		add(s.weights.InvalidFiscalCode, "invalid_fiscal_code_format")
	}

	haystack := strings.ToLower(email + " " + first + " " + last)
	for _, kw := range s.matchedKeywords(haystack) {
		add(s.weights.SuspiciousKeyword, "keyword:"+kw)
	}

	res.IsSpam = res.Score >= s.threshold
	res.NeedsReview = !res.IsSpam && res.Score >= s.reviewThreshold
	return res
}

// isValidName acepta letras del alfabeto latino, con o sin diacriticos, mas espacio, apostrofo y guion.
func isValidName(name string) bool {
	for _, r := range name {
		switch {
		case r == ' ', r == '\'', r == '’', r == '-':
		case unicode.IsLetter(r) && unicode.In(r, unicode.Latin):
		default:
			return false
		}
	}
	return true
}

// IsFiscalCodeFormat comprueba solo la forma de 16 caracteres, no el digito de control.
func IsFiscalCodeFormat(code string) bool {
	return fiscalCodeRe.MatchString(strings.ToUpper(strings.TrimSpace(code)))
}

func (s *SpamScorer) isDisposable(domain string) bool {
	if domain == "" {
		return false
	}
	if _, ok := s.disposable[domain]; ok {
		return true
	}
	for d := range s.disposable {
		if strings.HasSuffix(domain, "."+d) {
			return true
		}
	}
	return false
}

func (s *SpamScorer) matchedKeywords(haystack string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, kw := range s.keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if _, dup := seen[kw]; dup {
			continue
		}
		if strings.Contains(haystack, kw) {
			seen[kw] = struct{}{}
			out = append(out, kw)
		}
	}
	sort.Strings(out)
	return out
}

func splitEmail(email string) (string, string) {
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return email, ""
	}
	return email[:at], email[at+1:]
}

func botShapedLocalPart(local string) bool {
	n := len(local)
	if n < 3 || n > 50 {
		return true
	}
	if trailingDigitsRe.MatchString(local) {
		return true
	}
	digits := 0
	for i := 0; i < n; i++ {
		if local[i] >= '0' && local[i] <= '9' {
			digits++
		}
	}
	return float64(digits)/float64(n) >= 0.7
}

func botShapedName(name string) bool {
	if name == "" {
		return false
	}
	return lettersDigitsRe.MatchString(name) ||
		fewLettersRe.MatchString(name) ||
		genericPrefixRe.MatchString(name) ||
		digitRunRe.MatchString(name) ||
		singleLetterRe.MatchString(name)
}
