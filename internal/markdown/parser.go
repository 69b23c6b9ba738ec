// Package markdown extracts records from topic files.
//
// Level-1 headings ("# ") outside fenced code blocks are record headings.
// Level-1 headings that follow each other, separated only by blank lines,
// are alternative phrasings ("siblings") of the same record and share its
// body. Tags are "#word" tokens at the end of a heading line.
package markdown

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Heading is a level-1 heading found in a markdown document.
type Heading struct {
	Line     int      // 1-based line number, used as the heading id
	Text     string   // heading text without the "# " marker and tags
	Tags     []string // tags without the leading '#'
	Siblings []int    // line numbers of the other headings of the same block
}

// codeBlock matches a fenced block and captures its content.
var codeBlock = regexp.MustCompile("(?s)```.*?\n(.*?)```")

var commentPrefixes = []string{"#", "//", "--", ";"}

// ParseHeadings returns every record heading in content, in file order.
func ParseHeadings(content string) []Heading {
	var (
		headings      []Heading
		siblings      []int
		insideCode    bool
		insideSibling bool
	)

	closeBlock := func() {
		assignSiblings(headings, siblings)
		siblings = nil
	}

	for i, line := range splitLines(content) {
		lineNo := i + 1

		if insideSibling {
			switch {
			case isHeading(line):
				headings = append(headings, parseHeadingLine(line, lineNo))
				siblings = append(siblings, lineNo)
			case isBlank(line):
			default:
				insideSibling = false
				closeBlock()
			}
		}

		if isFence(line) {
			insideCode = !insideCode
		}

		if !insideCode && !insideSibling && isHeading(line) {
			insideSibling = true
			headings = append(headings, parseHeadingLine(line, lineNo))
			siblings = append(siblings, lineNo)
		}
	}
	if insideSibling {
		closeBlock()
	}
	return headings
}

// HeadingAt parses the heading found on the given 1-based line.
func HeadingAt(content string, line int) (Heading, error) {
	lines := splitLines(content)
	if line < 1 || line > len(lines) {
		return Heading{}, fmt.Errorf("line %d out of range (1-%d)", line, len(lines))
	}
	text := lines[line-1]
	if !isHeading(text) {
		return Heading{}, fmt.Errorf("line %d is not a level 1 heading", line)
	}
	return parseHeadingLine(text, line), nil
}

// Section returns the body of the record whose heading sits on the given
// line: everything after the heading and its siblings up to the next level-1
// heading outside a code block.
func Section(content string, line int) string {
	lines := splitLines(content)
	if line < 0 || line >= len(lines) {
		return ""
	}

	var (
		b             strings.Builder
		insideCode    bool
		insideSibling = true
	)
	for _, l := range lines[line:] {
		if insideSibling {
			if isBlank(l) || isHeading(l) {
				continue
			}
			insideSibling = false
		}
		if isFence(l) {
			insideCode = !insideCode
		}
		if isHeading(l) && !insideCode {
			break
		}
		b.WriteString(l)
	}
	return b.String()
}

// Commands returns the trimmed, non-comment lines of every fenced code block
// in text.
func Commands(text string) []string {
	var commands []string
	for _, block := range Scripts(text) {
		for _, l := range strings.Split(block, "\n") {
			l = strings.TrimSpace(l)
			if l == "" || isComment(l) {
				continue
			}
			commands = append(commands, l)
		}
	}
	return commands
}

// Scripts returns the verbatim content of every fenced code block in text.
func Scripts(text string) []string {
	matches := codeBlock.FindAllStringSubmatch(text, -1)
	scripts := make([]string, 0, len(matches))
	for _, m := range matches {
		scripts = append(scripts, m[1])
	}
	return scripts
}

// ParseTags returns the tags of a heading line, without their '#'.
func ParseTags(line string) []string {
	tags, _ := splitTags(line)
	return tags
}

func parseHeadingLine(line string, lineNo int) Heading {
	tags, stripped := splitTags(line)
	text := strings.TrimSpace(stripped)
	// drop the "#<space>" marker
	if isHeading(text) {
		text = text[2:]
	}
	return Heading{
		Line: lineNo,
		Text: strings.TrimSpace(text),
		Tags: tags,
	}
}

// splitTags finds '#'-prefixed words that are not preceded by a non-space
// character and returns them along with the line stripped of them.
func splitTags(line string) ([]string, string) {
	var (
		tags []string
		out  strings.Builder
		prev rune = ' '
	)
	for i := 0; i < len(line); {
		r, size := utf8.DecodeRuneInString(line[i:])
		if r == '#' && unicode.IsSpace(prev) {
			end := i + size
			for end < len(line) {
				wr, wsize := utf8.DecodeRuneInString(line[end:])
				if !isWordRune(wr) {
					break
				}
				end += wsize
			}
			if end > i+size {
				tags = append(tags, line[i+size:end])
				r, _ = utf8.DecodeLastRuneInString(line[i:end])
				prev = r
				i = end
				continue
			}
		}
		out.WriteRune(r)
		prev = r
		i += size
	}
	return tags, out.String()
}

// assignSiblings links the last len(ids) headings to each other.
func assignSiblings(headings []Heading, ids []int) {
	if len(ids) < 2 {
		return
	}
	block := headings[len(headings)-len(ids):]
	for i := range block {
		others := make([]int, 0, len(ids)-1)
		for _, id := range ids {
			if id != block[i].Line {
				others = append(others, id)
			}
		}
		block[i].Siblings = others
	}
}

// splitLines splits content into lines that keep their terminator.
func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	lines := strings.SplitAfter(content, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func isHeading(line string) bool {
	if len(line) < 2 || line[0] != '#' {
		return false
	}
	r, _ := utf8.DecodeRuneInString(line[1:])
	return unicode.IsSpace(r)
}

func isBlank(line string) bool {
	return strings.TrimSpace(line) == ""
}

func isFence(line string) bool {
	return strings.HasPrefix(line, "```")
}

func isComment(line string) bool {
	for _, p := range commentPrefixes {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
