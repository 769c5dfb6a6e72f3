package fsutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestIsValidPath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := filepath.Join(dir, "signature.png")
	if err := os.WriteFile(file, []byte("png"), 0o600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	tests := []struct {
		name string
		path string
		want bool
	}{
		{name: "regular file", path: file, want: true},
		{name: "directory", path: dir, want: false},
		{name: "missing", path: filepath.Join(dir, "missing.png"), want: false},
		{name: "empty", path: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := (Validator{}).IsValidPath(tt.path); got != tt.want {
				t.Errorf("IsValidPath(%q): got %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}
