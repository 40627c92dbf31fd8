// Package input expands command arguments that use - (stdin) or @file
// syntax into the values they stand for.
package input

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrStdinReused is returned when - appears more than once.
var ErrStdinReused = errors.New("stdin (-) can only be used once")

// ExpandArgs replaces "-" with the lines read from stdin and "@path" with
// the lines of that file. Blank lines and lines starting with # are
// skipped, and duplicates are dropped keeping the first occurrence.
func ExpandArgs(args []string, stdin io.Reader) ([]string, error) {
	var (
		result    []string
		seen      = make(map[string]bool)
		stdinUsed bool
	)
	add := func(values []string) {
		for _, v := range values {
			if !seen[v] {
				seen[v] = true
				result = append(result, v)
			}
		}
	}
	for _, v := range args {
		switch {
		case v == "-":
			if stdinUsed {
				return nil, ErrStdinReused
			}
			stdinUsed = true
			lines, err := ReadLinesFromReader(stdin)
			if err != nil {
				return nil, fmt.Errorf("read stdin: %w", err)
			}
			add(lines)
		case strings.HasPrefix(v, "@"):
			path := strings.TrimPrefix(v, "@")
			file, err := os.Open(path)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", path, err)
			}
			lines, err := ReadLinesFromReader(file)
			file.Close()
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", path, err)
			}
			add(lines)
		default:
			if v = strings.TrimSpace(v); v != "" {
				add([]string{v})
			}
		}
	}
	return result, nil
}

// ReadLinesFromReader reads non-empty, non-comment lines from a reader.
func ReadLinesFromReader(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}
