package domain

// ValidBarcode reports whether s is a GTIN-8, GTIN-12 (UPC-A), GTIN-13 (EAN)
// or GTIN-14 code with a correct check digit.
func ValidBarcode(s string) bool {
	switch len(s) {
	case 8, 12, 13, 14:
	default:
		return false
	}

	sum := 0
	// Weights alternate 3,1 starting from the digit left of the check digit
	for i := len(s) - 2; i >= 0; i-- {
		c := s[i]
		if c < '0' || c > '9' {
			return false
		}
		d := int(c - '0')
		if (len(s)-2-i)%2 == 0 {
			d *= 3
		}
		sum += d
	}

	check := s[len(s)-1]
	if check < '0' || check > '9' {
		return false
	}
	return (10-sum%10)%10 == int(check-'0')
}

// LooksLikeBarcode reports whether s is all digits and of a GTIN length,
// without checking the check digit
func LooksLikeBarcode(s string) bool {
	switch len(s) {
	case 8, 12, 13, 14:
	default:
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
