package domain

import (
	"strconv"
	"strings"
)

// NormalizeRUT strips dots, dashes and spaces and upper-cases the check digit.
func NormalizeRUT(raw string) string {
	r := strings.NewReplacer(".", "", "-", "", " ", "").Replace(strings.TrimSpace(raw))
	return strings.ToUpper(r)
}

// ValidRUT verifies a Chilean RUT against its modulo 11 check digit.
func ValidRUT(raw string) bool {
	rut := NormalizeRUT(raw)
	if len(rut) < 2 {
		return false
	}
	body, dv := rut[:len(rut)-1], rut[len(rut)-1:]
	for _, c := range body {
		if c < '0' || c > '9' {
			return false
		}
	}
	return checkDigit(body) == dv
}

func checkDigit(body string) string {
	sum := 0
	mul := 2
	for i := len(body) - 1; i >= 0; i-- {
		sum += int(body[i]-'0') * mul
		if mul == 7 {
			mul = 2
		} else {
			mul++
		}
	}
	switch rest := sum % 11; rest {
	case 0:
		return "0"
	case 1:
		return "K"
	default:
		return strconv.Itoa(11 - rest)
	}
}

// FormatRUT renders a RUT as "12.345.678-9", the form the clinic directory
// stores. Input that is too short to carry a check digit is returned as is.
func FormatRUT(raw string) string {
	rut := NormalizeRUT(raw)
	if len(rut) < 2 {
		return raw
	}
	body, dv := rut[:len(rut)-1], rut[len(rut)-1:]

	var b strings.Builder
	for i, c := range body {
		if i > 0 && (len(body)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(c)
	}
	b.WriteByte('-')
	b.WriteString(dv)
	return b.String()
}
