// Package parser extracts transaction drafts from raw statement bytes.
// Only CSV is parsed locally; other formats go to the remote extractor.
package parser

import (
	"bytes"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/finlight-sa/finlight-api/internal/domain"
)

// Accepted CSV row layout: date, description, signed amount, [reference, ...]
const minCSVFields = 4

// dateLayouts are tried in order when parsing the date field.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02/01/2006",
	"01/02/2006",
	time.RFC3339,
}

// ParseCSV decodes the statement bytes as UTF-8 text and extracts one draft
// per well-formed row. The first line is treated as a header and dropped.
// Malformed rows are skipped, never rejected: a statement with only bad rows
// parses to an empty slice. ErrParseFailure is returned only when the whole
// input is unreadable (binary content or nothing but a header).
func ParseCSV(data []byte) ([]domain.TransactionDraft, error) {
	if len(data) == 0 {
		return nil, &domain.ErrParseFailure{Format: "csv", Reason: "empty file"}
	}
	if bytes.IndexByte(data, 0) != -1 || !utf8.Valid(data) {
		return nil, &domain.ErrParseFailure{Format: "csv", Reason: "binary content"}
	}

	lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	if len(lines) < 2 {
		return nil, &domain.ErrParseFailure{Format: "csv", Reason: "no data rows"}
	}

	drafts := make([]domain.TransactionDraft, 0, len(lines)-1)
	for _, line := range lines[1:] {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if draft, ok := parseRow(line); ok {
			drafts = append(drafts, draft)
		}
	}
	return drafts, nil
}

// parseRow accepts a row only if it has at least minCSVFields comma-separated
// fields, a parseable date in field 0 and a signed decimal in field 2.
// Direction comes from the sign; the stored amount is the magnitude.
func parseRow(line string) (domain.TransactionDraft, bool) {
	fields := strings.Split(line, ",")
	if len(fields) < minCSVFields {
		return domain.TransactionDraft{}, false
	}

	date, ok := parseDate(strings.TrimSpace(fields[0]))
	if !ok {
		return domain.TransactionDraft{}, false
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(fields[2]))
	if err != nil {
		return domain.TransactionDraft{}, false
	}

	direction := domain.DirectionCredit
	if amount.IsNegative() {
		direction = domain.DirectionDebit
	}

	return domain.TransactionDraft{
		TxnDate:     date,
		Amount:      amount.Abs(),
		Direction:   direction,
		Description: strings.TrimSpace(fields[1]),
		Reference:   strings.TrimSpace(fields[3]),
	}, true
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
