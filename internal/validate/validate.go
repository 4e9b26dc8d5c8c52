// Package validate checks user answers against per-field syntax rules.
//
// Every rule returns a definite Verdict and never panics. Rejection reasons
// are user-facing and therefore localized.
package validate

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Kind selects a validation rule.
type Kind int

const (
	KindFullName Kind = iota
	KindUnitNumber
	KindPersonalNumber
	KindPhone
	KindFreeText
	KindNonEmpty
)

// DefaultFreeTextMin applies when free text is validated without a step-specific minimum.
const DefaultFreeTextMin = 30

// Verdict is the outcome of a rule. Value holds the normalized answer and is
// only meaningful when Accepted is true.
type Verdict struct {
	Accepted bool
	Value    string
	Reason   string
}

// Rule validates one raw answer.
type Rule func(raw string) Verdict

func accept(v string) Verdict   { return Verdict{Accepted: true, Value: v} }
func reject(why string) Verdict { return Verdict{Reason: why} }

var (
	unitPattern     = regexp.MustCompile(`^[0-9]{5}$`)
	personalPattern = regexp.MustCompile(`^[А-ЯЁA-Z]{1,2}-[0-9]{6}$`)
	phoneStrip      = regexp.MustCompile(`[^0-9+]`)
	phonePatterns   = []*regexp.Regexp{
		regexp.MustCompile(`^\+7[0-9]{10}$`),
		regexp.MustCompile(`^8[0-9]{10}$`),
		regexp.MustCompile(`^7[0-9]{10}$`),
	}

	upperRU = cases.Upper(language.Russian)
)

// Validate runs the rule for kind against raw.
func Validate(kind Kind, raw string) Verdict {
	switch kind {
	case KindFullName:
		return FullName(raw)
	case KindUnitNumber:
		return UnitNumber(raw)
	case KindPersonalNumber:
		return PersonalNumber(raw)
	case KindPhone:
		return Phone(raw)
	case KindFreeText:
		return FreeText(DefaultFreeTextMin)(raw)
	case KindNonEmpty:
		return NonEmpty(raw)
	default:
		return reject("Неизвестный тип поля")
	}
}

func clean(raw string) string {
	return strings.TrimSpace(norm.NFC.String(raw))
}

// FullName accepts exactly three alphabetic tokens of at least three letters each.
func FullName(raw string) Verdict {
	parts := strings.Fields(clean(raw))
	if len(parts) != 3 {
		return reject("Нужно Фамилия Имя Отчество, через пробел")
	}
	for _, p := range parts {
		if utf8.RuneCountInString(p) < 3 || !isLetters(p) {
			return reject("Каждая часть минимум 3 буквы, только буквы")
		}
	}
	return accept(strings.Join(parts, " "))
}

func isLetters(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// UnitNumber accepts exactly five decimal digits.
func UnitNumber(raw string) Verdict {
	v := clean(raw)
	if !unitPattern.MatchString(v) {
		return reject("В/ч должна содержать ровно 5 цифр! Пример: 12345")
	}
	return accept(v)
}

// PersonalNumber accepts one or two letters, a hyphen and six digits, in any
// case. The accepted value is upper-cased.
func PersonalNumber(raw string) Verdict {
	v := upperRU.String(clean(raw))
	if !personalPattern.MatchString(v) {
		return reject("Неверный формат! Должно быть: А-123456 или АБ-123456")
	}
	return accept(v)
}

// Phone strips everything except digits and '+' and accepts +7XXXXXXXXXX,
// 8XXXXXXXXXX or 7XXXXXXXXXX. The accepted value is the stripped number.
func Phone(raw string) Verdict {
	v := phoneStrip.ReplaceAllString(raw, "")
	for _, p := range phonePatterns {
		if p.MatchString(v) {
			return accept(v)
		}
	}
	return reject("Неверный формат!\n\nДопустимые форматы:\n+79991234567\n89991234567\n79991234567")
}

// FreeText returns a rule accepting trimmed text of at least min characters.
func FreeText(min int) Rule {
	return func(raw string) Verdict {
		v := clean(raw)
		if utf8.RuneCountInString(v) < min {
			return reject("Опишите подробнее ситуацию")
		}
		return accept(v)
	}
}

// NonEmpty accepts any text that is not blank.
func NonEmpty(raw string) Verdict {
	v := clean(raw)
	if v == "" {
		return reject("Ответ не может быть пустым")
	}
	return accept(v)
}
