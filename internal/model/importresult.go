package model

// RecordError identifies one source record that could not be imported and why.
type RecordError struct {
	Identifier string `json:"identifier"`
	Reason     string `json:"reason"`
}

// FileResult is the per-source-file outcome of an import run.
// Imported + Skipped + Failed always equals Total.
type FileResult struct {
	Imported int           `json:"imported"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
	Total    int           `json:"total"`
	Errors   []RecordError `json:"errors,omitempty"`
}

// ImportResult aggregates a whole import run. It is produced fresh per run
// and returned to the caller; it is never persisted.
type ImportResult struct {
	Success   bool          `json:"success"`
	Imported  int           `json:"imported"`
	Companies *FileResult   `json:"companies,omitempty"`
	Contacts  *FileResult   `json:"contacts,omitempty"`
	Deals     *FileResult   `json:"deals,omitempty"`
	Errors    []RecordError `json:"errors,omitempty"`
	Message   string        `json:"message"`
}

// TotalImported sums the imported counters across entity types.
func (r *ImportResult) TotalImported() int {
	n := 0
	for _, fr := range []*FileResult{r.Companies, r.Contacts, r.Deals} {
		if fr != nil {
			n += fr.Imported
		}
	}
	return n
}

// AllErrors flattens the per-file error lists in company, contact, deal order.
func (r *ImportResult) AllErrors() []RecordError {
	var out []RecordError
	for _, fr := range []*FileResult{r.Companies, r.Contacts, r.Deals} {
		if fr != nil {
			out = append(out, fr.Errors...)
		}
	}
	return out
}
