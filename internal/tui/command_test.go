package tui

import (
	"reflect"
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in   string
		want Command
	}{
		{"q", Command{Name: "q"}},
		{"  LOGIN  700123 Alice  ", Command{Name: "login", Args: "700123 Alice"}},
		{"attach /tmp/a b.png", Command{Name: "attach", Args: "/tmp/a b.png"}},
		{"", Command{}},
	}
	for _, tt := range tests {
		if got := ParseCommand(tt.in); got != tt.want {
			t.Errorf("ParseCommand(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestCommandFields(t *testing.T) {
	got := ParseCommand("get abc  out.bin").Fields()
	if !reflect.DeepEqual(got, []string{"abc", "out.bin"}) {
		t.Errorf("Fields = %v", got)
	}
}

func TestParseLogin(t *testing.T) {
	tests := []struct {
		in      string
		want    LoginArgs
		wantErr bool
	}{
		{"700123", LoginArgs{Digits: "700123"}, false},
		{"+44 7911123456 Ann Lee", LoginArgs{CountryCode: "+44", Digits: "7911123456", Name: "Ann Lee"}, false},
		{"700123 Bob", LoginArgs{Digits: "700123", Name: "Bob"}, false},
		{"+44", LoginArgs{}, true},
		{"", LoginArgs{}, true},
	}
	for _, tt := range tests {
		got, err := ParseLogin(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLogin(%q) err = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLogin(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}
