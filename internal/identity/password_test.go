package identity

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolvePassword_EnvWins(t *testing.T) {
	file := filepath.Join(t.TempDir(), "pw")
	if err := os.WriteFile(file, []byte("from-file\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(PasswordEnv, "from-env")

	if got := ResolvePassword(file)(); got != "from-env" {
		t.Errorf("ResolvePassword() = %q, want from-env", got)
	}
}

func TestResolvePassword_File(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"newline trimmed", "secret\n", "secret"},
		{"crlf trimmed", "secret\r\n", "secret"},
		{"inner spaces kept", "two words", "two words"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(PasswordEnv, "")
			file := filepath.Join(t.TempDir(), "pw")
			if err := os.WriteFile(file, []byte(tt.content), 0600); err != nil {
				t.Fatal(err)
			}
			if got := ResolvePassword(file)(); got != tt.want {
				t.Errorf("ResolvePassword() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolvePassword_IsLazy(t *testing.T) {
	t.Setenv(PasswordEnv, "")
	file := filepath.Join(t.TempDir(), "pw")
	src := ResolvePassword(file)

	if err := os.WriteFile(file, []byte("written-later"), 0600); err != nil {
		t.Fatal(err)
	}
	if got := src(); got != "written-later" {
		t.Errorf("ResolvePassword() = %q, want the file written after construction", got)
	}
}

func TestStaticPassword(t *testing.T) {
	if got := StaticPassword("fixed")(); got != "fixed" {
		t.Errorf("StaticPassword() = %q", got)
	}
}
