package matching

import (
	"regexp"
	"strings"
)

var (
	// Matches size/quantity patterns like "400 g", "1.5 l", "12 fl oz"
	sizeQuantityPattern = regexp.MustCompile(`(?i)\b\d+[.,]?\d*\s*(?:fl\s*oz|oz|ml|cl|l|liters?|litres?|kg|grams?|g|lbs?)\b`)

	// Matches pack/count patterns like "6 pack", "pack of 6", "24 ct"
	packCountPattern = regexp.MustCompile(`(?i)\b\d+\s*[-x]?\s*(?:pack|pk|count|ct)\b|\bpack\s*of\s*\d+\b|\b\d+\s*x\b`)

	// Characters that upstream search endpoints choke on
	specialCharsPattern = regexp.MustCompile(`[#%+@!^*()=\[\]{}<>|\\~` + "`" + `]`)

	multiSpacePattern = regexp.MustCompile(`\s+`)
)

// maxQueryLength bounds the query sent to external databases
const maxQueryLength = 100

// CleanQuery strips size, pack and special-character noise from a product
// query before it is sent to an external database
func CleanQuery(q string) string {
	cleaned := strings.ReplaceAll(q, "&", " and ")
	cleaned = specialCharsPattern.ReplaceAllString(cleaned, " ")
	cleaned = sizeQuantityPattern.ReplaceAllString(cleaned, " ")
	cleaned = packCountPattern.ReplaceAllString(cleaned, " ")
	cleaned = multiSpacePattern.ReplaceAllString(cleaned, " ")
	cleaned = strings.TrimSpace(cleaned)

	if len(cleaned) > maxQueryLength {
		cleaned = cleaned[:maxQueryLength]
		// Try to cut at word boundary
		if lastSpace := strings.LastIndex(cleaned, " "); lastSpace > maxQueryLength/2 {
			cleaned = cleaned[:lastSpace]
		}
	}

	// Nothing useful left; fall back to the trimmed input
	if cleaned == "" {
		return strings.TrimSpace(q)
	}
	return cleaned
}
