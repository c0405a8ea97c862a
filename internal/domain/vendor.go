package domain

import "strings"

// businessSuffixes are legal-form tokens dropped from the end of vendor names.
var businessSuffixes = map[string]struct{}{
	"INC": {}, "INCORPORATED": {}, "CORP": {}, "CORPORATION": {}, "CO": {}, "COMPANY": {},
	"LLC": {}, "LLP": {}, "LP": {}, "LTD": {}, "LIMITED": {}, "PLC": {}, "GMBH": {}, "AG": {},
	"SA": {}, "SAS": {}, "SARL": {}, "SRL": {}, "SPA": {}, "BV": {}, "NV": {}, "AB": {}, "AS": {},
	"OY": {}, "KK": {}, "PTY": {}, "PTE": {},
}

// NormalizeVendor turns a raw vendor name into the vendor key: punctuation
// removed, upper-cased, trailing business suffixes stripped. A name made only
// of a suffix keeps its last token. The result is stable under reapplication.
func NormalizeVendor(raw string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '.', '\'', '"':
			return -1
		case ',', ';', '(', ')':
			return ' '
		}
		return r
	}, strings.ToUpper(raw))

	tokens := strings.Fields(cleaned)
	for len(tokens) > 1 {
		if _, ok := businessSuffixes[tokens[len(tokens)-1]]; !ok {
			break
		}
		tokens = tokens[:len(tokens)-1]
	}
	return strings.Join(tokens, " ")
}
