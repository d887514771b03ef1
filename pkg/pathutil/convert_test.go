package pathutil

import "testing"

func TestToRelative(t *testing.T) {
	cases := []struct {
		name    string
		abs     string
		root    string
		want    string
	}{
		{"inside root", "/repo/src/main.go", "/repo", "src/main.go"},
		{"nested deeper", "/repo/a/b/c.go", "/repo/a", "b/c.go"},
		{"outside root", "/other/file.go", "/repo", "/other/file.go"},
		{"already relative", "src/main.go", "/repo", "src/main.go"},
		{"empty path", "", "/repo", ""},
		{"empty root", "/repo/file.go", "", "/repo/file.go"},
		{"root itself", "/repo", "/repo", "."},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ToRelative(tc.abs, tc.root)
			if got != tc.want {
				t.Errorf("ToRelative(%q, %q) = %q, want %q", tc.abs, tc.root, got, tc.want)
			}
		})
	}
}
