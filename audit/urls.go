package audit

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// ReadURLs reads one URL per line. Blank lines and lines starting with '#'
// are skipped; repeated URLs are kept once, in first-seen order.
func ReadURLs(r io.Reader) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || seen[line] {
			continue
		}
		seen[line] = true
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("audit: read urls: %w", err)
	}
	return out, nil
}

// LoadURLs reads the URL list file at path.
func LoadURLs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audit: open url list: %w", err)
	}
	defer f.Close()
	return ReadURLs(f)
}
