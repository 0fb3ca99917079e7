package pp

import "testing"

func TestExcludeMatcher_Match(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		relPath  string
		want     bool
	}{
		{"no patterns", nil, "a/b/c.txt", false},
		{"exact component match", []string{".git"}, ".git/config", true},
		{"component match deep in tree", []string{".git"}, "project/.git/HEAD", true},
		{"component is not a substring match", []string{".git"}, "mygit/file.txt", false},
		{"glob on filename", []string{"*.log"}, "app.log", true},
		{"glob on nested filename", []string{"*.log"}, "logs/app.log", true},
		{"glob does not match other extensions", []string{"*.log"}, "app.logx", false},
		{"exact relative path", []string{"build/output.bin"}, "build/output.bin", true},
		{"exact relative path no partial", []string{"build/output.bin"}, "build/output.bin.bak", false},
		{"doublestar pattern", []string{"**/node_modules/**"}, "web/node_modules/pkg/index.js", true},
		{"question mark glob", []string{"tmp?"}, "tmp1/file", true},
		{"blank patterns skipped", []string{" ", ""}, "anything", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewExcludeMatcher(tt.patterns)
			if got := m.Match(tt.relPath); got != tt.want {
				t.Errorf("Match(%q) with patterns %v = %v, want %v", tt.relPath, tt.patterns, got, tt.want)
			}
		})
	}
}
