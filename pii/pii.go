// Package pii masks personally identifiable information in chunk content
// before it is embedded and persisted: emails, phone numbers, national
// IDs, credit cards, and IBANs.
package pii

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/yourorg/docrag/store"
)

// Config toggles which masking rules run. DefaultConfig enables all of
// them; the zero value enables none.
type Config struct {
	Emails bool
	Phones bool
	IDs    bool
	Cards  bool
	IBANs  bool
}

// DefaultConfig enables every masking rule.
func DefaultConfig() Config {
	return Config{Emails: true, Phones: true, IDs: true, Cards: true, IBANs: true}
}

// Counts tallies how many substitutions each rule made, accumulated into
// extracted_metadata.pii_masked.
type Counts struct {
	Emails int `json:"emails"`
	Phones int `json:"phones"`
	IDs    int `json:"ids"`
	Cards  int `json:"cards"`
	IBANs  int `json:"ibans"`
}

// Masker applies PII masking rules in a fixed order: email, phone, ID,
// card, IBAN.
type Masker struct {
	cfg Config
}

// New returns a Masker. Zero-value Config means no rules are enabled;
// callers wanting every rule should pass DefaultConfig().
func New(cfg Config) *Masker {
	return &Masker{cfg: cfg}
}

var (
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	// Phone candidates: runs of digits/separators with at least 8 digits.
	phoneRe = regexp.MustCompile(`(?:\+?\d[\d .()-]{6,}\d)`)
	idRe    = regexp.MustCompile(`\b\d{13}\b`)
	cardRe  = regexp.MustCompile(`\b\d{4}[ -]?\d{4}[ -]?\d{4}[ -]?\d{4}\b`)
	ibanRe  = regexp.MustCompile(`\b[A-Z]{2}\d{2}(?:[ -]?\d{4}){4}\b`)

	digitsOnly = regexp.MustCompile(`\D`)
)

// Run masks PII in every chunk not already flagged Duplicate, mutating
// Content in place and setting PIIMasked. Returns aggregate per-kind
// counts across all chunks processed.
func (m *Masker) Run(chunks []store.Chunk) Counts {
	var total Counts
	for i := range chunks {
		if chunks[i].Duplicate {
			continue
		}
		masked, c := m.mask(chunks[i].Content)
		if c != (Counts{}) {
			chunks[i].Content = masked
			chunks[i].PIIMasked = true
		}
		total.Emails += c.Emails
		total.Phones += c.Phones
		total.IDs += c.IDs
		total.Cards += c.Cards
		total.IBANs += c.IBANs
	}
	return total
}

// mask applies all enabled rules, in fixed order, to a single string.
func (m *Masker) mask(text string) (string, Counts) {
	var c Counts
	if m.cfg.Emails {
		text = emailRe.ReplaceAllStringFunc(text, func(match string) string {
			c.Emails++
			return maskEmail(match)
		})
	}
	if m.cfg.Phones {
		text = phoneRe.ReplaceAllStringFunc(text, func(match string) string {
			// A bare run of digits with no separator and no leading '+'
			// looks like a national ID or card number, not a phone
			// number; leave it for those rules to consider.
			if match[0] != '+' && !strings.ContainsAny(match, " .()-") {
				return match
			}
			digits := digitsOnly.ReplaceAllString(match, "")
			// 16-digit runs are left for the card rule below; phone
			// numbers top out around 15 digits (ITU E.164).
			if len(digits) < 8 || len(digits) > 15 {
				return match
			}
			c.Phones++
			return maskPhone(digits)
		})
	}
	if m.cfg.IDs {
		text = idRe.ReplaceAllStringFunc(text, func(match string) string {
			if !plausibleNationalID(match) {
				return match
			}
			c.IDs++
			return maskNationalID(match)
		})
	}
	if m.cfg.Cards {
		text = cardRe.ReplaceAllStringFunc(text, func(match string) string {
			digits := digitsOnly.ReplaceAllString(match, "")
			if len(digits) != 16 || !luhnValid(digits) {
				return match
			}
			c.Cards++
			return maskCard(digits)
		})
	}
	if m.cfg.IBANs {
		text = ibanRe.ReplaceAllStringFunc(text, func(match string) string {
			c.IBANs++
			return maskIBAN(match)
		})
	}
	return text, c
}

// maskEmail preserves the first character and the domain: a***@domain.
func maskEmail(email string) string {
	at := strings.IndexByte(email, '@')
	if at <= 0 {
		return email
	}
	local, domain := email[:at], email[at+1:]
	return fmt.Sprintf("%c***@%s", local[0], domain)
}

// maskPhone replaces a phone number with [PHONE_XXX<last3>].
func maskPhone(digits string) string {
	last3 := digits[len(digits)-3:]
	return "[PHONE_XXX" + last3 + "]"
}

// plausibleNationalID checks the first 2 digits as a day (1-31) and the
// next 2 as a month (1-12).
func plausibleNationalID(id string) bool {
	if len(id) != 13 {
		return false
	}
	day, err := strconv.Atoi(id[0:2])
	if err != nil || day < 1 || day > 31 {
		return false
	}
	month, err := strconv.Atoi(id[2:4])
	if err != nil || month < 1 || month > 12 {
		return false
	}
	return true
}

// maskNationalID keeps the first 2 digits (day) and masks the rest.
func maskNationalID(id string) string {
	return id[:2] + strings.Repeat("*", len(id)-2)
}

// luhnValid runs the Luhn checksum over a digit string.
func luhnValid(digits string) bool {
	sum := 0
	alt := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if alt {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		alt = !alt
	}
	return sum%10 == 0
}

// maskCard shows only the last 4 digits: ****-****-****-NNNN.
func maskCard(digits string) string {
	return "****-****-****-" + digits[len(digits)-4:]
}

// maskIBAN keeps the country code and last 4 digits.
func maskIBAN(iban string) string {
	clean := strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, iban)
	if len(clean) < 8 {
		return iban
	}
	country := clean[:2]
	last4 := clean[len(clean)-4:]
	masked := len(clean) - 2 - 4
	return country + strings.Repeat("*", masked) + last4
}
