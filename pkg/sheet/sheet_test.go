package sheet

import (
	"bytes"
	"testing"
)

func TestWriteThenRead(t *testing.T) {
	var buf bytes.Buffer
	header := []interface{}{"name", "quantity"}
	rows := [][]interface{}{
		{"Gloves", 12},
		{"Composite resin", 3},
	}
	if err := Write(&buf, "Stock", header, rows); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := ReadRows(&buf)
	if err != nil {
		t.Fatalf("ReadRows: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(got))
	}
	if got[0][0] != "name" || got[2][0] != "Composite resin" || got[2][1] != "3" {
		t.Errorf("unexpected rows %v", got)
	}
}

func TestReadRows_NotAWorkbook(t *testing.T) {
	if _, err := ReadRows(bytes.NewReader([]byte("plain text"))); err == nil {
		t.Fatal("expected error for non-xlsx input")
	}
}
