package identity

import (
	"regexp"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

var (
	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

	emailExtractPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	usPhonePattern      = regexp.MustCompile(`\+?1?\s*\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`)
	intlPhonePattern    = regexp.MustCompile(`\+\d{1,3}[-.\s]?\d{1,14}(?:[-.\s]?\d{1,13})?`)

	phoneCleanPattern = regexp.MustCompile(`[^\d+]`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

var (
	namePrefixes = map[string]bool{
		"mr": true, "mrs": true, "ms": true, "miss": true, "dr": true, "prof": true,
	}
	nameSuffixes = map[string]bool{
		"jr": true, "sr": true, "ii": true, "iii": true, "iv": true,
		"esq": true, "phd": true, "md": true,
	}
)

// NormalizeEmail lowercases and trims an email address and collapses
// provider aliasing. Gmail addresses lose dots and plus-suffixes in the
// local part, and googlemail.com folds into gmail.com. Returns false
// when the input is not a plausible address.
func NormalizeEmail(email string) (string, bool) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return "", false
	}

	at := strings.LastIndex(email, "@")
	local, domain := email[:at], email[at+1:]

	if domain == "gmail.com" || domain == "googlemail.com" {
		local = strings.ReplaceAll(local, ".", "")
		if plus := strings.Index(local, "+"); plus >= 0 {
			local = local[:plus]
		}
		domain = "gmail.com"
	}

	return local + "@" + domain, true
}

// NormalizePhone parses a phone number and returns it in E.164 form.
// Numbers without a country code are interpreted in the given default
// region. Returns false for numbers that cannot be parsed or are not
// valid for their region.
func NormalizePhone(phone, defaultRegion string) (string, bool) {
	cleaned := phoneCleanPattern.ReplaceAllString(phone, "")
	if cleaned == "" {
		return "", false
	}

	parsed, err := phonenumbers.Parse(cleaned, defaultRegion)
	if err != nil {
		return "", false
	}
	if !phonenumbers.IsValidNumber(parsed) {
		return "", false
	}

	return phonenumbers.Format(parsed, phonenumbers.E164), true
}

// NormalizeName lowercases a display name, collapses whitespace, and
// strips a single leading honorific and a single trailing generational
// or professional suffix.
func NormalizeName(name string) (string, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "", false
	}
	name = whitespacePattern.ReplaceAllString(name, " ")

	parts := strings.Split(name, " ")
	if len(parts) > 1 && namePrefixes[strings.TrimRight(parts[0], ".")] {
		parts = parts[1:]
	}
	if len(parts) > 1 && nameSuffixes[strings.TrimRight(parts[len(parts)-1], ".")] {
		parts = parts[:len(parts)-1]
	}

	normalized := strings.Join(parts, " ")
	if normalized == "" {
		return "", false
	}
	return normalized, true
}

// ValidEmail reports whether the string looks like an email address.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(strings.TrimSpace(email))
}

// ExtractIdentifiers scans free text for email addresses and phone
// numbers, returning them normalized and deduplicated.
func ExtractIdentifiers(text, defaultRegion string) (emails, phones []string) {
	seenEmails := map[string]bool{}
	for _, raw := range emailExtractPattern.FindAllString(text, -1) {
		if normalized, ok := NormalizeEmail(raw); ok && !seenEmails[normalized] {
			seenEmails[normalized] = true
			emails = append(emails, normalized)
		}
	}

	seenPhones := map[string]bool{}
	candidates := usPhonePattern.FindAllString(text, -1)
	candidates = append(candidates, intlPhonePattern.FindAllString(text, -1)...)
	for _, raw := range candidates {
		if normalized, ok := NormalizePhone(raw, defaultRegion); ok && !seenPhones[normalized] {
			seenPhones[normalized] = true
			phones = append(phones, normalized)
		}
	}

	return emails, phones
}
