package zip

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"
)

func TestArchiveDedupesAndSkipsEmpty(t *testing.T) {
	data, err := Archive([]Entry{
		{Name: "image-01.png", Data: []byte("a")},
		{Name: "image-01.png", Data: []byte("b")},
		{Name: "../escape.png", Data: []byte("c")},
		{Name: "empty.png"},
	})
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	want := map[string]string{"image-01.png": "a", "image-01-2.png": "b", "escape.png": "c"}
	if len(zr.File) != len(want) {
		t.Fatalf("files = %d, want %d", len(zr.File), len(want))
	}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", f.Name, err)
		}
		body, _ := io.ReadAll(rc)
		rc.Close()
		if want[f.Name] != string(body) {
			t.Fatalf("%s = %q, want %q", f.Name, body, want[f.Name])
		}
	}
}
