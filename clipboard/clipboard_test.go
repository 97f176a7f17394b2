package clipboard

import (
	"bytes"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
)

func TestSetGetClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip")
	s := NewStore(path)

	if err := s.SetClipboard([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetClipboard()
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Errorf("got %q", got)
	}

	if err := s.ClearClipboard(); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetClipboard()
	if len(got) != 0 {
		t.Errorf("clipboard not cleared: %q", got)
	}
}

func TestGetMissingFileReadsEmpty(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "absent"))
	got, err := s.GetClipboard()
	if err != nil || got != nil {
		t.Errorf("got %q, %v", got, err)
	}
}

func TestRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip")
	s := NewStore(path)
	if err := s.SetClipboard([]byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := s.Remove(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("clipboard file still exists")
	}
	// Removing twice is fine.
	if err := s.Remove(); err != nil {
		t.Errorf("second remove: %v", err)
	}
}

func TestBase64RoundTrip(t *testing.T) {
	// OSC 52 payloads must round-trip arbitrary bytes.
	cases := [][]byte{
		{},
		{0},
		[]byte("plain"),
		{0xff, 0x00, 0x7f, 0x80, 0x1b},
	}
	for _, in := range cases {
		enc := base64.StdEncoding.EncodeToString(in)
		out, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			t.Fatalf("%v: %v", in, err)
		}
		if !bytes.Equal(in, out) {
			t.Errorf("round trip failed: %v != %v", in, out)
		}
	}
}
