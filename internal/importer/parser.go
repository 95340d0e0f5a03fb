// Package importer implements the HubSpot CSV migration pipeline: a tolerant
// CSV parser, vocabulary mapping into the CRM's enumerations, and the
// clear-and-reload orchestrator with its backup-before-mutate contract.
package importer

import "strings"

// Record is one CSV row keyed by header name.
type Record map[string]string

// Parse tokenizes raw CSV text into records, using the first line as header
// names. It is deliberately forgiving: quoted fields may contain commas,
// doubled quotes collapse to a literal quote, rows shorter than the header
// get empty strings for the missing trailing fields, and blank lines are
// skipped. It never fails; dirty rows degrade to best-effort strings.
// Fields spanning multiple lines are not supported; input is split on
// newlines first, matching the export format this pipeline ingests.
func Parse(content string) []Record {
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	if len(lines) == 0 {
		return nil
	}

	headers := parseLine(lines[0])
	if len(headers) == 0 {
		return nil
	}

	var records []Record
	for _, line := range lines[1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := parseLine(line)
		rec := make(Record, len(headers))
		for i, h := range headers {
			if i < len(fields) {
				rec[h] = fields[i]
			} else {
				rec[h] = ""
			}
		}
		records = append(records, rec)
	}
	return records
}

// parseLine splits one line on commas outside quotes, collapsing escaped
// quotes ("" -> ") inside quoted text.
func parseLine(line string) []string {
	var (
		fields   []string
		b        strings.Builder
		inQuotes bool
	)
	for i := 0; i < len(line); i++ {
		ch := line[i]
		switch {
		case ch == '"':
			if inQuotes && i+1 < len(line) && line[i+1] == '"' {
				b.WriteByte('"')
				i++
			} else {
				inQuotes = !inQuotes
			}
		case ch == ',' && !inQuotes:
			fields = append(fields, cleanField(b.String()))
			b.Reset()
		default:
			b.WriteByte(ch)
		}
	}
	fields = append(fields, cleanField(b.String()))
	return fields
}

// cleanField strips stray surrounding quotes left by unbalanced quoting and
// trims whitespace.
func cleanField(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), `"`))
}
