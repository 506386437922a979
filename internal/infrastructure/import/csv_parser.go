package csvimport

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// utf8BOM is stripped from the start of uploaded files; spreadsheet
// exports on Windows routinely carry it.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVParser reads one uploaded feed file row by row. Headers are
// normalized to lower case so the carrier's "Invoice_Number" and our
// "invoice_number" address the same column, and the delimiter is sniffed
// from the header line because Brazilian carrier exports ship with
// semicolons as often as commas.
type CSVParser struct {
	reader      *csv.Reader
	buf         *bufio.Reader
	delimiter   rune
	sniff       bool
	headers     []string
	headerIndex map[string]int
	line        int
}

// ParserOption configures a CSVParser
type ParserOption func(*CSVParser)

// WithDelimiter fixes the field delimiter and disables sniffing
func WithDelimiter(d rune) ParserOption {
	return func(p *CSVParser) {
		p.delimiter = d
		p.sniff = false
	}
}

// NewCSVParser wraps a reader, strips a UTF-8 BOM if present and rejects
// files that are empty or not valid UTF-8.
func NewCSVParser(r io.Reader, opts ...ParserOption) (*CSVParser, error) {
	p := &CSVParser{
		delimiter:   ',',
		sniff:       true,
		headerIndex: make(map[string]int),
		buf:         bufio.NewReader(r),
	}
	for _, opt := range opts {
		opt(p)
	}

	head, err := p.buf.Peek(3)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if len(head) >= 3 && head[0] == utf8BOM[0] && head[1] == utf8BOM[1] && head[2] == utf8BOM[2] {
		_, _ = p.buf.Discard(3)
	}

	sample, err := p.buf.Peek(4096)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if len(sample) == 0 {
		return nil, ErrEmptyFile
	}
	if !utf8.Valid(sample) {
		return nil, ErrInvalidEncoding
	}
	if p.sniff {
		p.delimiter = sniffDelimiter(sample)
	}

	p.reader = csv.NewReader(p.buf)
	p.reader.Comma = p.delimiter
	p.reader.LazyQuotes = true
	p.reader.TrimLeadingSpace = true
	p.reader.FieldsPerRecord = -1
	return p, nil
}

// sniffDelimiter picks the delimiter from the first line of the sample.
// Semicolon wins only when the line has no commas at all.
func sniffDelimiter(sample []byte) rune {
	line := string(sample)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	if !strings.ContainsRune(line, ',') && strings.ContainsRune(line, ';') {
		return ';'
	}
	return ','
}

// ParseHeader reads the header row and builds the column index
func (p *CSVParser) ParseHeader() error {
	record, err := p.reader.Read()
	if err == io.EOF {
		return ErrMissingHeader
	}
	if err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}
	p.line = 1

	p.headers = make([]string, len(record))
	for i, h := range record {
		name := strings.ToLower(strings.TrimSpace(h))
		p.headers[i] = name
		p.headerIndex[name] = i
	}
	if len(p.headers) == 0 {
		return ErrMissingHeader
	}
	return nil
}

// Headers returns the normalized header names in file order
func (p *CSVParser) Headers() []string {
	return p.headers
}

// Row is one parsed data row keyed by normalized header name
type Row struct {
	LineNumber int
	Data       map[string]string
}

// Get returns the trimmed value of one column, or "" when absent
func (r *Row) Get(column string) string {
	return r.Data[column]
}

// IsEmpty reports whether every column of the row is blank
func (r *Row) IsEmpty() bool {
	for _, v := range r.Data {
		if v != "" {
			return false
		}
	}
	return true
}

// ReadRow reads the next data row. Short rows are padded with empty
// strings so rules can treat a missing trailing column as blank.
func (p *CSVParser) ReadRow() (*Row, error) {
	record, err := p.reader.Read()
	if err == io.EOF {
		return nil, io.EOF
	}
	p.line++
	if err != nil {
		return nil, fmt.Errorf("error reading row %d: %w", p.line, err)
	}

	row := &Row{
		LineNumber: p.line,
		Data:       make(map[string]string, len(p.headers)),
	}
	for i, name := range p.headers {
		if i < len(record) {
			row.Data[name] = strings.TrimSpace(record[i])
		} else {
			row.Data[name] = ""
		}
	}
	return row, nil
}

// CurrentRow returns the line number of the last row read, header included
func (p *CSVParser) CurrentRow() int {
	return p.line
}
