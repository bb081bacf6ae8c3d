package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dvloznov/bank-ingest/internal/ingest"
)

const header = "TransactionID,CustomerID,CustomerDOB,CustGender,CustLocation,CustAccountBalance,TransactionDate,TransactionTime,TransactionAmount (INR)"

func writeCSV(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "transactions.csv")
	body := strings.Join(append([]string{header}, lines...), "\n") + "\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return path
}

func row(id string) string {
	return id + ",C1010011,4/10/94,F,JAMSHEDPUR,17819.05,2/8/16,143207,25"
}

func TestCSVSource_ChunkBoundaries(t *testing.T) {
	path := writeCSV(t, row("T1"), row("T2"), row("T3"), row("T4"), row("T5"))

	s, err := Open(path, 2)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	var sizes []int
	for {
		chunk, err := s.Next(ctx)
		if errors.Is(err, ingest.ErrSourceDrained) {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		sizes = append(sizes, len(chunk.Rows))
		if chunk.Index != len(sizes) {
			t.Errorf("chunk index = %d, want %d", chunk.Index, len(sizes))
		}
	}

	want := []int{2, 2, 1}
	if len(sizes) != len(want) {
		t.Fatalf("chunk sizes = %v, want %v", sizes, want)
	}
	for i := range want {
		if sizes[i] != want[i] {
			t.Errorf("chunk %d size = %d, want %d", i+1, sizes[i], want[i])
		}
	}

	// Drained stays drained.
	if _, err := s.Next(ctx); !errors.Is(err, ingest.ErrSourceDrained) {
		t.Errorf("Next after drain = %v, want ErrSourceDrained", err)
	}
}

func TestCSVSource_HeaderMapping(t *testing.T) {
	path := writeCSV(t, row("T1"))

	s, err := Open(path, 10)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	chunk, err := s.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}

	r := chunk.Rows[0]
	if r.Line != 2 {
		t.Errorf("line = %d, want 2", r.Line)
	}
	if got := r.Get("TransactionID"); got != "T1" {
		t.Errorf("TransactionID = %q", got)
	}
	if got := r.Get("TransactionAmount (INR)"); got != "25" {
		t.Errorf("amount column = %q", got)
	}
	if got := r.Get("CustLocation"); got != "JAMSHEDPUR" {
		t.Errorf("location = %q", got)
	}
}

func TestCSVSource_MalformedLineIsCountedNotSkipped(t *testing.T) {
	path := writeCSV(t, row("T1"), "T2,only,four,fields", row("T3"))

	s, err := Open(path, 10)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	chunk, err := s.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}

	if len(chunk.Rows) != 3 {
		t.Fatalf("rows = %d, want 3 (malformed line kept)", len(chunk.Rows))
	}
	if chunk.Rows[1].Malformed == "" {
		t.Error("short line not marked malformed")
	}
	if chunk.Rows[0].Malformed != "" || chunk.Rows[2].Malformed != "" {
		t.Error("well-formed lines marked malformed")
	}
}

func TestCSVSource_RawBytesIncludeHeader(t *testing.T) {
	path := writeCSV(t, row("T1"), row("T2"), row("T3"))

	s, err := Open(path, 2)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	chunk, err := s.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}

	raw := string(chunk.Raw)
	if !strings.HasPrefix(raw, header+"\n") {
		t.Error("raw chunk does not start with the header row")
	}
	if !strings.Contains(raw, row("T1")) || !strings.Contains(raw, row("T2")) {
		t.Error("raw chunk missing its own rows")
	}
	if strings.Contains(raw, row("T3")) {
		t.Error("raw chunk contains a row from the next chunk")
	}
}

func TestCSVSource_SkipsBlankLines(t *testing.T) {
	path := writeCSV(t, row("T1"), "", "   ", row("T2"))

	s, err := Open(path, 10)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	chunk, err := s.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if len(chunk.Rows) != 2 {
		t.Errorf("rows = %d, want 2", len(chunk.Rows))
	}
}

func TestCSVSource_QuotedFields(t *testing.T) {
	line := `T1,C1,4/10/94,F,"PUNE, MAHARASHTRA",100.00,2/8/16,143207,"1,234.50"`
	path := writeCSV(t, line)

	s, err := Open(path, 10)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	chunk, err := s.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}

	r := chunk.Rows[0]
	if got := r.Get("CustLocation"); got != "PUNE, MAHARASHTRA" {
		t.Errorf("quoted location = %q", got)
	}
	if got := r.Get("TransactionAmount (INR)"); got != "1,234.50" {
		t.Errorf("quoted amount = %q", got)
	}
}

func TestOpen_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		if _, err := Open(filepath.Join(t.TempDir(), "nope.csv"), 10); err == nil {
			t.Error("Open succeeded on a missing file")
		}
	})

	t.Run("empty file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "empty.csv")
		if err := os.WriteFile(path, nil, 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := Open(path, 10); err == nil {
			t.Error("Open succeeded on an empty file")
		}
	})

	t.Run("bad chunk size", func(t *testing.T) {
		if _, err := Open("whatever.csv", 0); err == nil {
			t.Error("Open succeeded with chunk size 0")
		}
	})
}

func TestCSVSource_HeaderOnlyFileDrainsImmediately(t *testing.T) {
	path := writeCSV(t)

	s, err := Open(path, 10)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if _, err := s.Next(context.Background()); !errors.Is(err, ingest.ErrSourceDrained) {
		t.Errorf("Next = %v, want ErrSourceDrained", err)
	}
}
