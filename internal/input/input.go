// Package input reads the list of company names to resolve.
package input

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

var (
	// ErrInputNotFound is returned when the input file does not exist.
	ErrInputNotFound = errors.New("input: file not found")
	// ErrNoCompanies is returned when the input holds no company names.
	ErrNoCompanies = errors.New("input: no companies")
)

// ReadCompanies reads one company name per line from path. Lines are
// trimmed; blank lines and lines starting with '#' are skipped. Duplicates
// are kept.
func ReadCompanies(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrInputNotFound, path)
		}
		return nil, fmt.Errorf("input: %w", err)
	}
	defer f.Close()

	companies, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("input: %s: %w", path, err)
	}
	return companies, nil
}

// Parse reads company names from r with the same rules as ReadCompanies.
func Parse(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	var companies []string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		line = strings.TrimPrefix(line, "\ufeff")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		companies = append(companies, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(companies) == 0 {
		return nil, ErrNoCompanies
	}
	return companies, nil
}
