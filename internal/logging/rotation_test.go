package logging

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		input string
		want  int64
	}{
		{"50MB", 50 * 1024 * 1024},
		{"1GB", 1024 * 1024 * 1024},
		{"10KB", 10 * 1024},
		{"10kb", 10 * 1024},
		{"100B", 100},
		{"100", 100},
		{" 2 MB ", 2 * 1024 * 1024},
		{"0", 0},
		{"", 0},
		{"lots", 0},
		{"-5MB", 0},
	}

	for _, tt := range tests {
		got := ParseSize(tt.input)
		if got != tt.want {
			t.Errorf("ParseSize(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestValidateSize(t *testing.T) {
	for _, ok := range []string{"", "0", "10MB", "512"} {
		if err := ValidateSize(ok); err != nil {
			t.Errorf("ValidateSize(%q) = %v", ok, err)
		}
	}
	for _, bad := range []string{"ten", "10XB", "-1"} {
		if err := ValidateSize(bad); err == nil {
			t.Errorf("ValidateSize(%q) expected error", bad)
		}
	}
}

func TestRotateFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")
	if err := os.WriteFile(logPath, []byte("data"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := rotateFile(logPath, 3); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(logPath + ".1"); err != nil {
		t.Fatal("expected .1 backup file")
	}
	if _, err := os.Stat(logPath); !os.IsNotExist(err) {
		t.Fatal("original file should be renamed")
	}
}

func TestRotateFileKeepsBackups(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "test.log")

	for i := 1; i <= 4; i++ {
		if err := os.WriteFile(logPath, []byte(strconv.Itoa(i)), 0644); err != nil {
			t.Fatal(err)
		}
		if err := rotateFile(logPath, 3); err != nil {
			t.Fatal(err)
		}
	}

	// Newest generation is .1; the first write fell off the end.
	for gen, want := range map[int]string{1: "4", 2: "3", 3: "2"} {
		data, err := os.ReadFile(logPath + "." + strconv.Itoa(gen))
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != want {
			t.Fatalf(".%d = %q, want %q", gen, data, want)
		}
	}
	if _, err := os.Stat(logPath + ".4"); !os.IsNotExist(err) {
		t.Fatal("backup beyond the limit should not exist")
	}
}

func TestRotateFileTruncateOnZeroBackups(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")
	if err := os.WriteFile(logPath, []byte("data"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := rotateFile(logPath, 0); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 0 {
		t.Fatalf("expected empty file after truncation, got %d bytes", len(data))
	}
}
