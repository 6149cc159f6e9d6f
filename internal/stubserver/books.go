package stubserver

import "strings"

// bookCodes are the book identifiers the simulated typesetter knows about.
var bookCodes = map[string]struct{}{}

func init() {
	for _, code := range strings.Fields(`
		GEN EXO LEV NUM DEU JOS JDG RUT 1SA 2SA 1KI 2KI 1CH 2CH EZR NEH EST JOB
		PSA PRO ECC SNG ISA JER LAM EZK DAN HOS JOL AMO OBA JON MIC NAM HAB ZEP
		HAG ZEC MAL MAT MRK LUK JHN ACT ROM 1CO 2CO GAL EPH PHP COL 1TH 2TH 1TI
		2TI TIT PHM HEB JAS 1PE 2PE 1JN 2JN 3JN JUD REV
		TOB JDT ESG WIS SIR BAR 1MA 2MA`) {
		bookCodes[code] = struct{}{}
	}
}

// unknownBooks returns the codes in a comma-separated selection that the
// typesetter does not know, in selection order.
func unknownBooks(selection string) []string {
	var unknown []string
	for _, code := range strings.Split(selection, ",") {
		code = strings.ToUpper(strings.TrimSpace(code))
		if code == "" {
			continue
		}
		if _, ok := bookCodes[code]; !ok {
			unknown = append(unknown, code)
		}
	}
	return unknown
}
