// Package chordpro extracts metadata from ChordPro sources. It parses only
// the directives the catalog needs; rendering is done offline by the asset
// pipeline, never at request time.
package chordpro

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Meta is the directive metadata of one ChordPro source.
type Meta struct {
	Title    string
	Artist   string
	Key      string
	Tempo    int
	Language string
	// PageCount is 1 plus the number of explicit page breaks.
	PageCount int
}

// sourceExtensions are the recognized ChordPro file suffixes.
var sourceExtensions = map[string]struct{}{
	".pro":    {},
	".cho":    {},
	".chopro": {},
}

// IsSourceFile reports whether a filename carries a ChordPro extension.
func IsSourceFile(filename string) bool {
	_, ok := sourceExtensions[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// ParseFile reads and parses one ChordPro source.
func ParseFile(path string) (*Meta, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return Parse(f)
}

// Parse scans a ChordPro source for metadata directives. Later occurrences of
// the same directive win, matching how the reference renderer resolves
// duplicates. Unknown directives and all chord/lyric content are skipped.
func Parse(r io.Reader) (*Meta, error) {
	meta := &Meta{Language: "English", PageCount: 1}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "{") || !strings.HasSuffix(line, "}") {
			continue
		}

		name, value := splitDirective(line[1 : len(line)-1])
		switch name {
		case "title", "t":
			meta.Title = value
		case "artist", "a", "subtitle", "st":
			meta.Artist = value
		case "key":
			meta.Key = value
		case "tempo":
			if tempo, err := strconv.Atoi(value); err == nil {
				meta.Tempo = tempo
			}
		case "language":
			meta.Language = value
		case "new_page", "np":
			meta.PageCount++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	// A missing title falls back to the filename at import time; the parser
	// itself reports what the source says.
	return meta, nil
}

func splitDirective(directive string) (name, value string) {
	name, value, found := strings.Cut(directive, ":")
	name = strings.ToLower(strings.TrimSpace(name))
	if !found {
		return name, ""
	}
	return name, strings.TrimSpace(value)
}
