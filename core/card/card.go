// Package card validates the demo payment cards. It never talks to a card network.
package card

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	BrandVisa       Brand = "visa"
	BrandMastercard Brand = "mastercard"
	BrandAmex       Brand = "amex"
	BrandDiscover   Brand = "discover"
	BrandUnknown    Brand = "unknown"
)

// fields, in the order they are checked
const (
	FieldHolder = "holder"
	FieldNumber = "number"
	FieldExpiry = "expiry"
	FieldCVV    = "cvv"
)

var (
	nowFunc = time.Now // mockable

	brandPatterns = []struct {
		brand Brand
		re    *regexp.Regexp
	}{
		{BrandVisa, regexp.MustCompile(`^4`)},
		{BrandMastercard, regexp.MustCompile(`^(5[1-5]|22[2-9]|2[3-7])`)},
		{BrandAmex, regexp.MustCompile(`^3[47]`)},
		{BrandDiscover, regexp.MustCompile(`^(6011|65|64[4-9])`)},
	}

	expiryRegex = regexp.MustCompile(`^(\d{2})/(\d{2})$`)
	digitsRegex = regexp.MustCompile(`^\d+$`)
)

type (
	Brand string

	Card struct {
		Holder string `json:"holder"`
		Number string `json:"number"`
		Expiry string `json:"expiry"` // MM/YY
		CVV    string `json:"cvv"`
	}

	// Result is the outcome of Validate. On failure, Field and Reason name the first rule that failed.
	Result struct {
		Valid   bool   `json:"valid"`
		Brand   Brand  `json:"brand"`
		Field   string `json:"field,omitempty"`
		Reason  string `json:"reason,omitempty"`
		Message string `json:"message,omitempty"`
	}
)

// failure reasons
const (
	ReasonHolderRequired = "holder_required"
	ReasonNotNumeric     = "not_numeric"
	ReasonInvalidLength  = "invalid_length"
	ReasonLuhn           = "luhn_failed"
	ReasonExpiryFormat   = "expiry_format"
	ReasonExpiryMonth    = "expiry_month"
	ReasonExpired        = "expired"
	ReasonCVV            = "invalid_cvv"
)

var messages = map[string]string{
	ReasonHolderRequired: "El nombre del titular es obligatorio",
	ReasonNotNumeric:     "El número de tarjeta solo puede contener dígitos",
	ReasonInvalidLength:  "Longitud de número de tarjeta inválida",
	ReasonLuhn:           "Número de tarjeta inválido",
	ReasonExpiryFormat:   "La fecha de vencimiento debe tener el formato MM/AA",
	ReasonExpiryMonth:    "Mes de vencimiento inválido",
	ReasonExpired:        "Tarjeta vencida",
	ReasonCVV:            "Código de seguridad inválido",
}

// DetectBrand matches the card number prefix.
func DetectBrand(number string) Brand {
	number = normalize(number)
	for _, p := range brandPatterns {
		if p.re.MatchString(number) {
			return p.brand
		}
	}
	return BrandUnknown
}

// ExpectedLengths returns the valid number lengths for brand.
func ExpectedLengths(brand Brand) []int {
	switch brand {
	case BrandVisa:
		return []int{13, 16, 19}
	case BrandMastercard:
		return []int{16}
	case BrandAmex:
		return []int{15}
	case BrandDiscover:
		return []int{16, 19}
	default:
		return []int{12, 13, 14, 15, 16, 17, 18, 19}
	}
}

// LuhnCheck doubles every second digit from the right (minus 9 above 9) and expects a sum ≡ 0 mod 10.
// Non-digit input is invalid.
func LuhnCheck(digits string) bool {
	if digits == "" {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		c := digits[i]
		if c < '0' || c > '9' {
			return false
		}
		d := int(c - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

func CVVLength(brand Brand) int {
	if brand == BrandAmex {
		return 4
	}
	return 3
}

// Validate checks the card against the current month.
func Validate(c Card) Result {
	return ValidateAt(c, nowFunc())
}

// ValidateAt checks holder, number, expiry and CVV in that order and reports the first failure.
// A card expiring in the month of `now` is expired.
func ValidateAt(c Card, now time.Time) Result {
	number := normalize(c.Number)
	brand := DetectBrand(number)
	res := Result{Brand: brand}

	if strings.TrimSpace(c.Holder) == "" {
		return res.fail(FieldHolder, ReasonHolderRequired)
	}

	if !digitsRegex.MatchString(number) {
		return res.fail(FieldNumber, ReasonNotNumeric)
	}
	if !hasLength(number, ExpectedLengths(brand)) {
		return res.fail(FieldNumber, ReasonInvalidLength)
	}
	if !LuhnCheck(number) {
		return res.fail(FieldNumber, ReasonLuhn)
	}

	m := expiryRegex.FindStringSubmatch(strings.TrimSpace(c.Expiry))
	if m == nil {
		return res.fail(FieldExpiry, ReasonExpiryFormat)
	}
	month, _ := strconv.Atoi(m[1])
	year, _ := strconv.Atoi(m[2])
	if month < 1 || month > 12 {
		return res.fail(FieldExpiry, ReasonExpiryMonth)
	}
	year += 2000
	if year < now.Year() || (year == now.Year() && month <= int(now.Month())) {
		return res.fail(FieldExpiry, ReasonExpired)
	}

	cvv := strings.TrimSpace(c.CVV)
	if !digitsRegex.MatchString(cvv) || len(cvv) != CVVLength(brand) {
		return res.fail(FieldCVV, ReasonCVV)
	}

	res.Valid = true
	return res
}

func (r Result) fail(field, reason string) Result {
	r.Valid = false
	r.Field = field
	r.Reason = reason
	r.Message = messages[reason]
	return r
}

// normalize drops the spaces people type between digit groups.
func normalize(number string) string {
	return strings.ReplaceAll(strings.TrimSpace(number), " ", "")
}

func hasLength(number string, lengths []int) bool {
	for _, l := range lengths {
		if len(number) == l {
			return true
		}
	}
	return false
}
