package appstats

import (
	"bytes"
	"fmt"
	"io"

	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/zlib"
)

// Summary is the listing view of a Record.
type Summary struct {
	ID       string         `json:"id"`
	Method   string         `json:"method"`
	Path     string         `json:"path"`
	Query    string         `json:"query,omitempty"`
	Start    int64          `json:"start_ms"`
	Duration int64          `json:"duration_ms"`
	Status   int            `json:"status"`
	Calls    int            `json:"calls"`
	Pending  int            `json:"pending,omitempty"`
	ByName   map[string]int `json:"by_name,omitempty"`
}

// Summarize reduces a record to its listing view.
func Summarize(r Record) Summary {
	s := Summary{
		ID:       r.ID.String(),
		Method:   r.Method,
		Path:     r.Path,
		Query:    r.Query,
		Start:    r.Start.UnixMilli(),
		Duration: r.Duration.Milliseconds(),
		Status:   r.Status,
		Calls:    len(r.Calls),
		Pending:  r.PendingCalls(),
	}
	if len(r.Calls) > 0 {
		s.ByName = make(map[string]int)
		for _, c := range r.Calls {
			s.ByName[c.Name()]++
		}
	}
	return s
}

func encodeSummary(s Summary) ([]byte, error) {
	return sonic.Marshal(s)
}

func decodeSummary(data []byte) (Summary, error) {
	var s Summary
	err := sonic.Unmarshal(data, &s)
	return s, err
}

func encodeRecord(r Record) ([]byte, error) {
	raw, err := sonic.Marshal(r)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeRecord(data []byte) (Record, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return Record{}, fmt.Errorf("decompress record: %w", err)
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return Record{}, fmt.Errorf("decompress record: %w", err)
	}

	var r Record
	if err := sonic.Unmarshal(raw, &r); err != nil {
		return Record{}, fmt.Errorf("decode record: %w", err)
	}
	return r, nil
}
