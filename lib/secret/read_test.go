// Copyright 2026 The Cyst Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeTempSecret(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "secret")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("writing secret file: %v", err)
	}
	return path
}

func TestReadFromPath_TrimsWhitespace(t *testing.T) {
	path := writeTempSecret(t, "  hunter2\n")

	buffer, err := ReadFromPath(path)
	if err != nil {
		t.Fatalf("ReadFromPath: %v", err)
	}
	defer buffer.Close()

	if !buffer.Equal([]byte("hunter2")) {
		t.Errorf("got %q, want %q", buffer.String(), "hunter2")
	}
}

func TestReadFromPath_EmptySources(t *testing.T) {
	for _, tc := range []struct {
		name     string
		contents string
	}{
		{"empty file", ""},
		{"whitespace only", " \n\t\n"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			path := writeTempSecret(t, tc.contents)
			if _, err := ReadFromPath(path); !errors.Is(err, ErrEmpty) {
				t.Fatalf("got %v, want ErrEmpty", err)
			}
		})
	}
}

func TestReadFromPath_EmptyStdin(t *testing.T) {
	read, write, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	write.Close()
	original := os.Stdin
	os.Stdin = read
	t.Cleanup(func() {
		os.Stdin = original
		read.Close()
	})

	if _, err := ReadFromPath("-"); !errors.Is(err, ErrEmpty) {
		t.Fatalf("got %v, want ErrEmpty", err)
	}
}

func TestReadFromPath_MissingFile(t *testing.T) {
	if _, err := ReadFromPath(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
