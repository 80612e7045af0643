package notify

import (
	"log"
	"os/exec"
)

type Notifier interface {
	ListeningStarted(kind string)
	ListeningStopped()
	Error(msg string)
}

// Desktop sends notifications through notify-send.
type Desktop struct{}

func (Desktop) ListeningStarted(kind string) {
	send(false, "Listening to "+kind+" audio")
}

func (Desktop) ListeningStopped() {
	send(false, "Stopped listening")
}

func (Desktop) Error(msg string) {
	send(true, msg)
}

func send(critical bool, body string) {
	args := []string{"-a", "Sidecoach"}
	if critical {
		args = append(args, "-u", "critical")
	}
	args = append(args, "Sidecoach", body)
	if err := exec.Command("notify-send", args...).Run(); err != nil {
		log.Printf("Failed to send notification: %v", err)
	}
}

// Log writes notifications to the daemon log; used on headless hosts.
type Log struct{}

func (Log) ListeningStarted(kind string) { log.Printf("notify: listening to %s audio", kind) }
func (Log) ListeningStopped()            { log.Printf("notify: stopped listening") }
func (Log) Error(msg string)             { log.Printf("notify: error: %s", msg) }

// Nop is a Notifier that does absolutely nothing.
// Useful in unit tests or headless builds.
type Nop struct{}

func (Nop) ListeningStarted(kind string) {}
func (Nop) ListeningStopped()            {}
func (Nop) Error(msg string)             {}

// ForType returns the notifier matching the configured notifications.type.
func ForType(typ string) Notifier {
	switch typ {
	case "desktop":
		return Desktop{}
	case "log":
		return Log{}
	default:
		return Nop{}
	}
}
