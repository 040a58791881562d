package util

import "testing"

func TestHashUserKey(t *testing.T) {
	id := "guest:12345"
	got := HashUserKey(id)
	if got != HashUserKey(id) {
		t.Fatalf("expected stable hash, got %s", got)
	}
	if len(got) != 64 {
		t.Fatalf("expected 64 hex characters, got %d", len(got))
	}
}

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "plain", in: "reply.mp3", want: "reply.mp3"},
		{name: "separators", in: "a/b\\c.wav", want: "a_b_c.wav"},
		{name: "traversal", in: "../etc/passwd", wantErr: true},
		{name: "blank", in: "   ", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeFileName(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.in)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("SanitizeFileName(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
			}
		})
	}
}

func TestExt(t *testing.T) {
	cases := map[string]string{
		"Voice.MP3":   "mp3",
		"notes.txt ":  "txt",
		"recording":   "",
		"archive.tar": "tar",
	}
	for in, want := range cases {
		if got := Ext(in); got != want {
			t.Fatalf("Ext(%q) = %q, want %q", in, got, want)
		}
	}
}
