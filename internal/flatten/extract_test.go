package flatten

import (
	"bytes"
	"encoding/csv"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestExtractEntries(t *testing.T) {
	doc := mustParse(t, `{"resourceType":"Bundle","entry":[{"a":1},{"b":2},3]}`)

	entries, err := ExtractEntries(doc, "")
	if err != nil {
		t.Fatalf("ExtractEntries failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	if entries[2].Kind() != KindNumber {
		t.Errorf("entry 2 kind = %s, want number", entries[2].Kind())
	}
}

func TestExtractEntriesCustomField(t *testing.T) {
	doc := mustParse(t, `{"items":[{"a":1}]}`)

	entries, err := ExtractEntries(doc, "items")
	if err != nil {
		t.Fatalf("ExtractEntries failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
}

func TestExtractEntriesMalformed(t *testing.T) {
	tests := map[string]string{
		"missing field":  `{"resourceType":"Bundle"}`,
		"field not list": `{"entry":{"a":1}}`,
		"root is list":   `[{"a":1}]`,
		"root is scalar": `"entry"`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ExtractEntries(mustParse(t, doc), DefaultEntryField)
			if !errors.Is(err, ErrMalformedDocument) {
				t.Errorf("expected ErrMalformedDocument, got %v", err)
			}
		})
	}
}

func TestWriteCSV(t *testing.T) {
	doc := mustParse(t, `{"entry":[
		{"a":1},
		{"b":2},
		{"a":"x, y","b":null,"c":true,"note":"line1\r\nline2"}
	]}`)
	entries, err := ExtractEntries(doc, DefaultEntryField)
	if err != nil {
		t.Fatalf("ExtractEntries failed: %v", err)
	}
	table, err := Flattener{}.FlattenTable(entries)
	if err != nil {
		t.Fatalf("FlattenTable failed: %v", err)
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, table); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}

	want := "a,b,c,note\n" +
		"1,,,\n" +
		",2,,\n" +
		"\"x, y\",,true,line1line2\n"
	if got := buf.String(); got != want {
		t.Errorf("csv mismatch\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestWriteCSVEmptyTable(t *testing.T) {
	table, err := Flattener{}.FlattenTable(nil)
	if err != nil {
		t.Fatalf("FlattenTable failed: %v", err)
	}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, table); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}
	if got := buf.String(); got != "\n" {
		t.Errorf("got %q, want a lone header line", got)
	}
}

func TestWriteCSVSingleColumnKeepsEveryRow(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
		rows [][]string
	}{
		{
			name: "missing and null cells",
			doc:  `{"entry":[{"a":1},{},{"a":null}]}`,
			want: "a\n1\n\"\"\n\"\"\n",
			rows: [][]string{{"a"}, {"1"}, {""}, {""}},
		},
		{
			name: "root scalar entries",
			doc:  `{"entry":["x",null]}`,
			want: "\"\"\nx\n\"\"\n",
			rows: [][]string{{""}, {"x"}, {""}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := ExtractEntries(mustParse(t, tt.doc), DefaultEntryField)
			if err != nil {
				t.Fatalf("ExtractEntries failed: %v", err)
			}
			table, err := Flattener{}.FlattenTable(entries)
			if err != nil {
				t.Fatalf("FlattenTable failed: %v", err)
			}

			var buf bytes.Buffer
			if err := WriteCSV(&buf, table); err != nil {
				t.Fatalf("WriteCSV failed: %v", err)
			}
			if got := buf.String(); got != tt.want {
				t.Errorf("csv mismatch\ngot:  %q\nwant: %q", got, tt.want)
			}

			records, err := csv.NewReader(&buf).ReadAll()
			if err != nil {
				t.Fatalf("reading csv back failed: %v", err)
			}
			if len(records)-1 != len(table.Rows) {
				t.Errorf("read back %d data rows, table has %d", len(records)-1, len(table.Rows))
			}
			if diff := cmp.Diff(tt.rows, records); diff != "" {
				t.Errorf("records mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
