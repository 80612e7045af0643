package notify

import "testing"

func TestForType(t *testing.T) {
	tests := []struct {
		typ  string
		want Notifier
	}{
		{"desktop", Desktop{}},
		{"log", Log{}},
		{"none", Nop{}},
		{"", Nop{}},
		{"bogus", Nop{}},
	}
	for _, tt := range tests {
		if got := ForType(tt.typ); got != tt.want {
			t.Errorf("ForType(%q) = %T, want %T", tt.typ, got, tt.want)
		}
	}
}

func TestNopIsSilent(t *testing.T) {
	var n Notifier = Nop{}
	n.ListeningStarted("meeting")
	n.ListeningStopped()
	n.Error("nothing should happen")
}
