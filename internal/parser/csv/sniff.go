package csv

import "bytes"

// sniffCandidates are the delimiters SniffComma chooses from, in tie order.
var sniffCandidates = []byte{',', ';', '\t', '|'}

// SniffComma guesses the delimiter from the first line of sample. Delimiters
// inside double quotes are ignored. The candidate seen most often wins; ties
// go to the earlier candidate and a line without any yields ','.
func SniffComma(sample []byte) rune {
	sample = bytes.TrimPrefix(sample, []byte(bom))

	var counts [4]int
	inQuotes := false
scan:
	for _, c := range sample {
		switch {
		case c == '"':
			inQuotes = !inQuotes
		case inQuotes:
		case c == '\n' || c == '\r':
			break scan
		default:
			if i := bytes.IndexByte(sniffCandidates, c); i >= 0 {
				counts[i]++
			}
		}
	}

	best := 0
	for i := range counts {
		if counts[i] > counts[best] {
			best = i
		}
	}
	return rune(sniffCandidates[best])
}

