package validators

import "testing"

func TestSanitizeString(t *testing.T) {
	cases := map[string]struct {
		in   string
		max  int
		want string
	}{
		"trims":         {in: "  gemini-2.5-pro \n", want: "gemini-2.5-pro"},
		"control chars": {in: "flash\x00\x1b[31m", want: "flash[31m"},
		"rune safe":     {in: "Filamentö", max: 9, want: "Filamentö"},
		"cuts to runes": {in: "ééééé", max: 3, want: "ééé"},
		"no limit":      {in: "abc", max: 0, want: "abc"},
	}
	for name, tc := range cases {
		if got := SanitizeString(tc.in, tc.max); got != tc.want {
			t.Fatalf("%s: expected %q got %q", name, tc.want, got)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"spool.jpg":                 "spool.jpg",
		"../../etc/passwd":          "passwd",
		`C:\Users\me\Desktop\a.png`: "a.png",
		"":                          fallbackFilename,
		"..":                        fallbackFilename,
		"dir/":                      "dir",
	}
	for in, want := range cases {
		if got := SanitizeFilename(in, 255); got != want {
			t.Fatalf("%q: expected %q got %q", in, want, got)
		}
	}
}
