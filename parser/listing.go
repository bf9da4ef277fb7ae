package parser

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"
)

const (
	listingSeparator = "|"
	symbolColumn     = "Symbol"
	trailerPrefix    = "File Creation Time"

	MaxSymbolLength = 5
)

var ErrNoSymbolColumn = errors.New("listing header has no Symbol column")

// ParseListing reads a pipe-delimited symbol directory (the nasdaqlisted.txt
// layout) and returns the Symbol column in file order.
func ParseListing(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	col := -1
	var symbols []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, listingSeparator)

		if col < 0 {
			for i, name := range fields {
				if strings.EqualFold(strings.TrimSpace(name), symbolColumn) {
					col = i
					break
				}
			}
			if col < 0 {
				return nil, ErrNoSymbolColumn
			}
			continue
		}

		if strings.HasPrefix(line, trailerPrefix) || col >= len(fields) {
			continue
		}
		if sym := strings.TrimSpace(fields[col]); sym != "" {
			symbols = append(symbols, sym)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read listing: %w", err)
	}
	if col < 0 {
		return nil, ErrNoSymbolColumn
	}
	return symbols, nil
}

// FilterSymbols keeps plain alphabetic tickers of at most MaxSymbolLength
// characters, dropping share classes, warrants, units and duplicates.
func FilterSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if !isTradableSymbol(s) {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func isTradableSymbol(s string) bool {
	n := 0
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
		n++
	}
	return n > 0 && n <= MaxSymbolLength
}
