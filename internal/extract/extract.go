// Package extract pulls candidate account data out of raw console and socket
// payloads. The output is best-effort and non-authoritative; callers feed it
// through the reconciler's validation path and never persist it directly.
package extract

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/NovaLinkLabs/memberlink/backend/internal/account"
)

// Confidence bands per extraction pass. Structured payloads are trusted more
// than loose keyword scans.
const (
	ConfidenceStructured = 0.9
	ConfidencePairs      = 0.6
	ConfidenceKeywords   = 0.3
)

// Candidate is a partial account observation with a confidence score and the
// name of the pass that produced it.
type Candidate struct {
	Data       account.Observed
	Confidence float64
	Pass       string
}

var (
	pairPattern    = regexp.MustCompile(`(?i)\b([a-z_]+)\s*[:=]\s*("[^"]*"|[^\s,;|]+)`)
	balancePattern = regexp.MustCompile(`(?i)\b(?:balance|available|avail)\b\D{0,10}(-?\d+(?:\.\d+)?)`)
	pointsPattern  = regexp.MustCompile(`(?i)\bpoints?\b\D{0,10}(\d+)`)
	userPattern    = regexp.MustCompile(`(?i)\b(?:user|username|account|member)\b\W{0,5}([a-z0-9_.-]{3,64})`)
)

// Parse runs the extraction passes in order of decreasing trust and returns
// the first candidate that carries at least one usable field. The second
// return is false when nothing recognizable was found.
func Parse(raw string) (Candidate, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Candidate{}, false
	}
	if candidate, ok := parseStructured(raw); ok {
		return candidate, true
	}
	if candidate, ok := parsePairs(raw); ok {
		return candidate, true
	}
	return parseKeywords(raw)
}

func parseStructured(raw string) (Candidate, bool) {
	var payload map[string]any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return Candidate{}, false
	}
	observed, found := observedFromFields(func(apply func(key, value string)) {
		for key, value := range payload {
			apply(strings.ToLower(key), stringify(value))
		}
	})
	if !found {
		return Candidate{}, false
	}
	return Candidate{Data: observed, Confidence: ConfidenceStructured, Pass: "structured"}, true
}

func parsePairs(raw string) (Candidate, bool) {
	matches := pairPattern.FindAllStringSubmatch(raw, -1)
	if len(matches) == 0 {
		return Candidate{}, false
	}
	observed, found := observedFromFields(func(apply func(key, value string)) {
		for _, match := range matches {
			apply(strings.ToLower(match[1]), strings.Trim(match[2], `"`))
		}
	})
	if !found {
		return Candidate{}, false
	}
	return Candidate{Data: observed, Confidence: ConfidencePairs, Pass: "pairs"}, true
}

func parseKeywords(raw string) (Candidate, bool) {
	var observed account.Observed
	found := false

	if match := userPattern.FindStringSubmatch(raw); match != nil {
		observed.Username = match[1]
		found = true
	}
	if match := balancePattern.FindStringSubmatch(raw); match != nil {
		if amount, err := strconv.ParseFloat(match[1], 64); err == nil {
			observed.Available = &amount
			found = true
		}
	}
	if match := pointsPattern.FindStringSubmatch(raw); match != nil {
		if points, err := strconv.ParseInt(match[1], 10, 64); err == nil {
			observed.Points = &points
			found = true
		}
	}
	if !found {
		return Candidate{}, false
	}
	return Candidate{Data: observed, Confidence: ConfidenceKeywords, Pass: "keywords"}, true
}

// observedFromFields maps recognized key names onto Observed fields. The
// iterator hands over every key/value pair the pass produced.
func observedFromFields(iterate func(apply func(key, value string))) (account.Observed, bool) {
	var observed account.Observed
	found := false

	iterate(func(key, value string) {
		value = strings.TrimSpace(value)
		if value == "" {
			return
		}
		switch key {
		case "username", "user", "account", "member", "login":
			observed.Username = value
			found = true
		case "first_name", "firstname":
			observed.FirstName = &value
			found = true
		case "last_name", "lastname":
			observed.LastName = &value
			found = true
		case "balance", "available", "avail":
			if amount, err := strconv.ParseFloat(value, 64); err == nil {
				observed.Available = &amount
				found = true
			}
		case "credit":
			if amount, err := strconv.ParseFloat(value, 64); err == nil {
				observed.Credit = &amount
				found = true
			}
		case "bet_credit", "betcredit":
			if amount, err := strconv.ParseFloat(value, 64); err == nil {
				observed.BetCredit = &amount
				found = true
			}
		case "tier", "level", "vip":
			if tier, err := account.ParseTier(value); err == nil {
				observed.Tier = &tier
				found = true
			}
		case "points", "score":
			if points, err := strconv.ParseInt(value, 10, 64); err == nil {
				observed.Points = &points
				found = true
			}
		case "phone", "mobile":
			observed.Phone = &value
			found = true
		case "bank", "bank_name":
			observed.BankName = &value
			found = true
		case "bank_number", "account_number":
			observed.BankNumber = &value
			found = true
		}
	})
	return observed, found
}

func stringify(value any) string {
	switch typed := value.(type) {
	case string:
		return typed
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(typed)
	case nil:
		return ""
	default:
		encoded, err := json.Marshal(typed)
		if err != nil {
			return ""
		}
		return string(encoded)
	}
}
