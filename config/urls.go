package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// ReadURLs reads product URLs from a file, one per line. Blank lines and
// lines starting with '#' are skipped.
func ReadURLs(filename string) ([]string, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open products file: %w", err)
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		// ignore blank lines (useful if the file has a trailing newline)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanner error: %w", err)
	}
	return urls, nil
}
