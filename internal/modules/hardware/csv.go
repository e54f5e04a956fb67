package hardware

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// Header is the column layout of a voltage map file.
var Header = []string{"Channel_ID", "Phase_Rad", "Voltage_V", "DAC_Value_16bit"}

// Record is one unparsed data line of a voltage map file.
type Record struct {
	Line   int
	Fields []string
}

// Table is a voltage map file as read, before validation.
type Table struct {
	Header  []string
	Records []Record
}

// WriteCSV writes rows with the standard header.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, r := range rows {
		rec := []string{
			strconv.Itoa(r.Channel),
			strconv.FormatFloat(r.Phase, 'f', -1, 64),
			strconv.FormatFloat(r.Voltage, 'f', -1, 64),
			strconv.Itoa(r.DAC),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("failed to write channel %d: %w", r.Channel, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV reads a voltage map file without interpreting the values. Rows with
// a wrong field count are kept and reported by Verify.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("voltage map is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	t := &Table{Header: header}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read voltage map: %w", err)
		}
		line, _ := cr.FieldPos(0)
		t.Records = append(t.Records, Record{Line: line, Fields: rec})
	}
	return t, nil
}

// TableOf renders rows as a table, for verifying maps that never hit disk.
func TableOf(rows []Row) *Table {
	t := &Table{Header: append([]string(nil), Header...)}
	for i, r := range rows {
		t.Records = append(t.Records, Record{Line: i + 2, Fields: []string{
			strconv.Itoa(r.Channel),
			strconv.FormatFloat(r.Phase, 'f', -1, 64),
			strconv.FormatFloat(r.Voltage, 'f', -1, 64),
			strconv.Itoa(r.DAC),
		}})
	}
	return t
}

// parse interprets one record.
func parse(rec Record) (Row, error) {
	if len(rec.Fields) != len(Header) {
		return Row{}, fmt.Errorf("expected %d fields, got %d", len(Header), len(rec.Fields))
	}
	ch, err := strconv.Atoi(rec.Fields[0])
	if err != nil {
		return Row{}, fmt.Errorf("channel id: %w", err)
	}
	phase, err := strconv.ParseFloat(rec.Fields[1], 64)
	if err != nil {
		return Row{Channel: ch}, fmt.Errorf("phase: %w", err)
	}
	v, err := strconv.ParseFloat(rec.Fields[2], 64)
	if err != nil {
		return Row{Channel: ch}, fmt.Errorf("voltage: %w", err)
	}
	dac, err := strconv.Atoi(rec.Fields[3])
	if err != nil {
		return Row{Channel: ch}, fmt.Errorf("dac value: %w", err)
	}
	return Row{Channel: ch, Phase: phase, Voltage: v, DAC: dac}, nil
}
