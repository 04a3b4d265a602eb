package fingerprint

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBytesDeterministic(t *testing.T) {
	a := Bytes([]byte("draft one"))
	b := Bytes([]byte("draft one"))
	if a != b {
		t.Error("same content produced different fingerprints")
	}

	c := Bytes([]byte("draft two"))
	if a == c {
		t.Error("different content produced the same fingerprint")
	}
}

func TestStringParseRoundTrip(t *testing.T) {
	fp := Bytes([]byte("content"))

	s := fp.String()
	if len(s) != Size*2 {
		t.Fatalf("hex length = %d, want %d", len(s), Size*2)
	}

	parsed, err := Parse(s)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed != fp {
		t.Error("parsed fingerprint does not match original")
	}
}

func TestParseRejectsBadInput(t *testing.T) {
	cases := []string{
		"",
		"abc",
		"zz" + Bytes(nil).String()[2:],
	}
	for _, c := range cases {
		if _, err := Parse(c); err == nil {
			t.Errorf("Parse(%q) succeeded, want error", c)
		}
	}
}

func TestFileMatchesBytes(t *testing.T) {
	content := []byte("the quick brown fox\n")
	path := filepath.Join(t.TempDir(), "doc.txt")
	if err := os.WriteFile(path, content, 0600); err != nil {
		t.Fatal(err)
	}

	fp, size, err := File(path)
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if size != int64(len(content)) {
		t.Errorf("size = %d, want %d", size, len(content))
	}
	if fp != Bytes(content) {
		t.Error("streaming fingerprint differs from in-memory fingerprint")
	}
}

func TestFileMissing(t *testing.T) {
	if _, _, err := File(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestSumMatchesBytes(t *testing.T) {
	h := New()
	h.Write([]byte("part one "))
	h.Write([]byte("part two"))

	if Sum(h) != Bytes([]byte("part one part two")) {
		t.Error("incremental digest differs from one-shot digest")
	}
}
