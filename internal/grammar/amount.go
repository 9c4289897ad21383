package grammar

import (
	"regexp"
	"strings"

	"github.com/Nell373/linebot-ai/internal/errors"

	"github.com/shopspring/decimal"
)

// amountPattern accepts plain digits or comma-grouped thousands, with an
// optional fractional part. Signs are not accepted.
const amountPattern = `(?:\d{1,3}(?:,\d{3})+|\d+)(?:\.\d+)?`

var amountRe = regexp.MustCompile(`^` + amountPattern + `$`)

var widthFolder = strings.NewReplacer(
	"０", "0", "１", "1", "２", "2", "３", "3", "４", "4",
	"５", "5", "６", "6", "７", "7", "８", "8", "９", "9",
	"，", ",", "．", ".", "＋", "+", "　", " ",
)

// Normalize folds full-width digits and punctuation to ASCII and trims
// surrounding whitespace.
func Normalize(text string) string {
	return strings.TrimSpace(widthFolder.Replace(text))
}

// ParseAmount parses a non-negative decimal amount such as "1,234.56",
// "1234.56" or " 1234.56 ". A leading "$" or "NT$" is ignored.
func ParseAmount(text string) (decimal.Decimal, error) {
	s := Normalize(text)
	s = strings.TrimPrefix(s, "NT$")
	s = strings.TrimPrefix(s, "$")
	s = strings.TrimSpace(s)

	if !amountRe.MatchString(s) {
		return decimal.Zero, errors.InvalidInput("malformed amount " + quote(text))
	}

	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", ""))
	if err != nil {
		return decimal.Zero, errors.InvalidInput("malformed amount " + quote(text))
	}
	return d, nil
}

// SplitNoteAmount splits "早餐500" into ("早餐", 500). Text without a
// leading note is parsed as a bare amount and returns an empty note.
func SplitNoteAmount(text string) (string, decimal.Decimal, error) {
	s := Normalize(text)
	if amount, err := ParseAmount(s); err == nil {
		return "", amount, nil
	}
	m := noteAmountRe.FindStringSubmatch(s)
	if m == nil {
		return "", decimal.Zero, errors.InvalidInput("malformed amount " + quote(text))
	}
	amount, err := ParseAmount(m[2])
	if err != nil {
		return "", decimal.Zero, err
	}
	note := strings.TrimRight(m[1], " -－:：")
	if note == "" {
		return "", decimal.Zero, errors.InvalidInput("malformed amount " + quote(text))
	}
	return note, amount, nil
}

var noteAmountRe = regexp.MustCompile(`^([^\d\s][^\d]*?)\s*(` + amountPattern + `)$`)

func quote(s string) string {
	if r := []rune(s); len(r) > 32 {
		s = string(r[:32]) + "…"
	}
	return `"` + s + `"`
}
