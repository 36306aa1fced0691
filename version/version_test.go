package version

import "testing"

func TestCheckAppBuild(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"dev-1", "dev-1"},
		{"abc.def", ""},
		{"fix/branch", ""},
	}
	for _, test := range tests {
		if got := checkAppBuild(test.in); got != test.want {
			t.Errorf("checkAppBuild(%q): got %q, want %q", test.in, got, test.want)
		}
	}
}

func TestVersion(t *testing.T) {
	if got := Version(); got != "0.3.0" {
		t.Errorf("Version: got %s, want 0.3.0", got)
	}
}
