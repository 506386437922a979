package csvimport

import (
	"context"
	"io"
)

// UniqueLookup checks whether a value already exists upstream for one
// entity type and column
type UniqueLookup func(entityType, column, value string) (bool, error)

// ImportProcessor validates uploaded feed files against a rule set
// before anything is written. Validation is a dry run: it reads the
// whole file, records every finding and leaves storage untouched.
type ImportProcessor struct {
	maxRows      int
	maxErrors    int
	previewRows  int
	uniqueLookup UniqueLookup
}

// ProcessorOption configures an ImportProcessor
type ProcessorOption func(*ImportProcessor)

// WithUniqueLookup enables duplicate checks against existing records
func WithUniqueLookup(fn UniqueLookup) ProcessorOption {
	return func(p *ImportProcessor) {
		p.uniqueLookup = fn
	}
}

// NewImportProcessor creates an ImportProcessor
func NewImportProcessor(opts ...ProcessorOption) *ImportProcessor {
	p := &ImportProcessor{
		maxRows:     100000,
		maxErrors:   100,
		previewRows: 5,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Validate dry-runs one uploaded file against the rules and records the
// outcome on the session. A file with any bad row ends in the failed
// state; the caller may only import a session that validated cleanly.
func (p *ImportProcessor) Validate(ctx context.Context, session *ImportSession, reader io.Reader, rules []FieldRule) (*ValidationResult, error) {
	session.UpdateState(StateValidating)

	parser, err := NewCSVParser(reader)
	if err != nil {
		session.UpdateState(StateFailed)
		return nil, err
	}
	if err := parser.ParseHeader(); err != nil {
		session.UpdateState(StateFailed)
		return nil, err
	}

	validator := NewFieldValidator(rules, p.maxErrors)
	parseErrors := NewErrorCollection(p.maxErrors)
	result := NewValidationResult(session.ID.String())

	totalRows, validRows, errorRows := 0, 0, 0
	for {
		select {
		case <-ctx.Done():
			session.UpdateState(StateCancelled)
			return nil, ctx.Err()
		default:
		}

		row, err := parser.ReadRow()
		if err == io.EOF {
			break
		}
		if err != nil {
			parseErrors.Add(NewRowError(parser.CurrentRow(), "", ErrCodeImportCSVParsing, err.Error()))
			errorRows++
			continue
		}
		if row.IsEmpty() {
			continue
		}

		totalRows++
		if totalRows > p.maxRows {
			parseErrors.Add(NewRowError(row.LineNumber, "", ErrCodeImportRowLimit, "exceeded maximum number of rows"))
			break
		}

		rowOK := validator.ValidateRow(row)
		if rowOK && p.uniqueLookup != nil {
			rowOK = p.checkUnique(session, row, rules, validator.Errors())
		}

		if !rowOK {
			errorRows++
			continue
		}
		validRows++
		if len(result.Preview) < p.previewRows {
			preview := make(map[string]any, len(row.Data))
			for k, v := range row.Data {
				preview[k] = v
			}
			result.Preview = append(result.Preview, preview)
		}
	}

	all := NewErrorCollection(p.maxErrors)
	for _, e := range parseErrors.Errors() {
		all.Add(e)
	}
	for _, e := range validator.Errors().Errors() {
		all.Add(e)
	}

	result.SetCounts(totalRows, validRows, errorRows)
	result.SetErrors(all)

	session.SetValidationResult(result)
	if errorRows > 0 {
		session.UpdateState(StateFailed)
	} else {
		session.UpdateState(StateValidated)
	}
	return result, nil
}

// checkUnique runs the upstream duplicate check for every unique column
// of the row
func (p *ImportProcessor) checkUnique(session *ImportSession, row *Row, rules []FieldRule, errors *ErrorCollection) bool {
	ok := true
	for i := range rules {
		rule := &rules[i]
		if !rule.Unique {
			continue
		}
		value := row.Get(rule.Column)
		if value == "" {
			continue
		}
		exists, err := p.uniqueLookup(string(session.EntityType), rule.Column, value)
		if err != nil {
			errors.Add(NewRowError(row.LineNumber, rule.Column, ErrCodeImportValidation,
				"error checking for existing record: "+err.Error()))
			ok = false
			continue
		}
		if exists {
			errors.Add(NewRowErrorWithValue(row.LineNumber, rule.Column, ErrCodeImportDuplicateInDB,
				"value '"+value+"' already exists", value))
			ok = false
		}
	}
	return ok
}
