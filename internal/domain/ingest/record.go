package ingest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
)

// Record is one scraped FAQ pair before embedding.
type Record struct {
	Section   string `json:"section"`
	Question  string `json:"question"`
	Answer    string `json:"answer"`
	SourceURL string `json:"source_url"`
}

var (
	sectionLine  = regexp.MustCompile(`^Section:\s*(.+)$`)
	dividerLine  = regexp.MustCompile(`^-+$`)
	questionLine = regexp.MustCompile(`^Question \d+:\s*(.*)$`)
	answerLine   = regexp.MustCompile(`^Answer \d+:\s*(.*)$`)
)

// ParseRecords decodes a scraper export. Files ending in .txt use the text layout, everything else JSON.
func ParseRecords(name string, data []byte, defaultSourceURL string) ([]Record, error) {
	var (
		records []Record
		err     error
	)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt":
		records, err = ParseText(bytes.NewReader(data))
	case ".json", "":
		records, err = ParseJSON(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("unsupported records format %q: use .json or .txt", filepath.Ext(name))
	}
	if err != nil {
		return nil, err
	}
	for i := range records {
		if strings.TrimSpace(records[i].SourceURL) == "" {
			records[i].SourceURL = defaultSourceURL
		}
	}
	return records, nil
}

// ParseJSON reads a JSON array of records.
func ParseJSON(r io.Reader) ([]Record, error) {
	var records []Record
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("parse records json: %w", err)
	}
	return records, nil
}

// ParseText reads the scraper's text export:
//
//	Section: Payments
//	-----------------
//	Question 1: How do I pay?
//	Answer 1: Online or by phone.
//
// Answers may span several lines and run until the next question or section.
func ParseText(r io.Reader) ([]Record, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), 4<<20)

	var (
		records  []Record
		section  string
		current  *Record
		question strings.Builder
		answer   strings.Builder
		inAnswer bool
	)
	flush := func() {
		if current != nil {
			current.Question = strings.TrimSpace(question.String())
			current.Answer = strings.TrimSpace(answer.String())
			records = append(records, *current)
		}
		current = nil
		question.Reset()
		answer.Reset()
		inAnswer = false
	}

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		trimmed := strings.TrimSpace(line)
		switch {
		case sectionLine.MatchString(trimmed):
			flush()
			section = strings.TrimSpace(sectionLine.FindStringSubmatch(trimmed)[1])
		case dividerLine.MatchString(trimmed) && current == nil:
		case questionLine.MatchString(trimmed):
			flush()
			current = &Record{Section: section}
			question.WriteString(questionLine.FindStringSubmatch(trimmed)[1])
		case answerLine.MatchString(trimmed) && current != nil && !inAnswer:
			inAnswer = true
			answer.WriteString(answerLine.FindStringSubmatch(trimmed)[1])
		case current != nil:
			target := &question
			if inAnswer {
				target = &answer
			}
			target.WriteString("\n")
			target.WriteString(line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read records text: %w", err)
	}
	flush()
	return records, nil
}
