// Package deck reads flashcards from markdown deck files and derives the
// stable content-hash identity used as the card ID.
//
// The deck format is line oriented. A card starts at a "Q:" line, its answer
// at an "A:" line and optional context at a "C:" line; each field runs until
// the next marker. "---" ends the current card early. Anything outside a
// card is ignored.
package deck

import (
	"bufio"
	"io"
	"os"
	"strings"
)

// Entry is one parsed card before it gains scheduling state.
type Entry struct {
	Question string
	Answer   string
	Context  string
}

type field int

const (
	none field = iota
	question
	answer
	contextField
)

// ParseFile reads a deck file from disk.
func ParseFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Parse(f)
}

// Parse extracts all cards from a deck.
func Parse(r io.Reader) ([]Entry, error) {
	var (
		entries []Entry
		current Entry
		lines   []string
		active  field
	)

	flushField := func() {
		if active == none || len(lines) == 0 {
			lines = nil
			return
		}
		content := strings.Join(lines, "\n")
		switch active {
		case question:
			current.Question = content
		case answer:
			current.Answer = content
		case contextField:
			current.Context = content
		}
		lines = nil
	}

	flushCard := func() {
		flushField()
		if current.Question != "" {
			entries = append(entries, current)
		}
		current = Entry{}
		active = none
	}

	startField := func(f field, rest string) {
		flushField()
		active = f
		lines = append(lines, strings.TrimPrefix(rest, " "))
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "---":
			flushCard()
		case strings.HasPrefix(line, "Q:"):
			// A new question always starts a new card.
			if active != none {
				flushCard()
			}
			startField(question, line[2:])
		case strings.HasPrefix(line, "A:"):
			startField(answer, line[2:])
		case strings.HasPrefix(line, "C:"):
			startField(contextField, line[2:])
		case active != none:
			lines = append(lines, line)
		}
	}
	flushCard()

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
