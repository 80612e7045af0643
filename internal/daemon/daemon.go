package daemon

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/hireflow/sidecoach/internal/bus"
	"github.com/hireflow/sidecoach/internal/capture"
	"github.com/hireflow/sidecoach/internal/config"
	"github.com/hireflow/sidecoach/internal/notify"
	"github.com/hireflow/sidecoach/internal/session"
)

// Status of the daemon's single listening slot.
type Status string

const (
	Idle      Status = "idle"
	Listening Status = "listening"
)

type Daemon struct {
	mu       sync.Mutex
	manager  *config.Manager
	notifier notify.Notifier

	ctx    context.Context
	cancel context.CancelFunc

	sess *session.Session
	cap  *capture.Session
}

func New(manager *config.Manager, n notify.Notifier) *Daemon {
	if n == nil {
		n = notify.ForType(manager.GetConfig().Notifications.Type)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Daemon{
		manager:  manager,
		notifier: n,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (d *Daemon) status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sess == nil {
		return Idle
	}
	return Listening
}

func (d *Daemon) Run() error {
	if err := bus.CheckExistingDaemon(); err != nil {
		return err
	}

	ln, err := bus.Listen()
	if err != nil {
		return err
	}
	defer ln.Close()

	if err := bus.CreatePidFile(); err != nil {
		return fmt.Errorf("failed to create PID file: %w", err)
	}
	defer bus.RemovePidFile()

	if err := d.manager.StartWatching(d.ctx); err != nil {
		log.Printf("Daemon: config watch unavailable: %v", err)
	}
	defer d.manager.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully", sig)
		d.cancel()
	}()

	// Close the listener when context is done
	go func() {
		<-d.ctx.Done()
		ln.Close()
	}()

	defer d.stopSession()

	log.Printf("Daemon started, listening on socket")

	for {
		c, err := ln.Accept()
		if err != nil {
			if d.ctx.Err() != nil {
				log.Printf("Shutdown requested")
				return nil
			}
			log.Printf("Accept error: %v", err)
			return fmt.Errorf("accept failed: %w", err)
		}
		go d.handle(c)
	}
}

func (d *Daemon) handle(c net.Conn) {
	defer c.Close()

	line, err := bufio.NewReader(c).ReadString('\n')
	if err != nil {
		log.Printf("Client read error: %v", err)
		fmt.Fprintf(c, "ERR read_error: %v\n", err)
		return
	}
	if len(line) == 0 {
		fmt.Fprint(c, "ERR empty\n")
		return
	}

	switch line[0] {
	case bus.CmdToggle:
		if err := d.toggle(); err != nil {
			fmt.Fprintf(c, "ERR %v\n", err)
			return
		}
		fmt.Fprintf(c, "OK %s\n", d.status())

	case bus.CmdStatus:
		fmt.Fprintf(c, "STATUS status=%s\n", d.status())

	case bus.CmdTranscript:
		d.writeTranscript(c)

	case bus.CmdVersion:
		fmt.Fprintf(c, "STATUS proto=%s\n", bus.ProtoVer)

	case bus.CmdQuit:
		fmt.Fprint(c, "OK quitting\n")
		d.cancel()

	default:
		log.Printf("Unknown command: %c", line[0])
		fmt.Fprintf(c, "ERR unknown=%q\n", line[0])
	}
}

func (d *Daemon) toggle() error {
	switch d.status() {
	case Idle:
		return d.startSession()
	default:
		d.stopSession()
		return nil
	}
}

func (d *Daemon) startSession() error {
	cfg := d.manager.GetConfig()

	kind := capture.Meeting
	if cfg.Capture.Device != "" {
		kind = capture.Microphone
	}

	sess, capSess, err := session.Open(d.ctx, cfg, kind, cfg.Capture.Device)
	if err != nil {
		go d.notifier.Error(fmt.Sprintf("Failed to start listening: %v", err))
		return err
	}

	d.mu.Lock()
	d.sess = sess
	d.cap = capSess
	d.mu.Unlock()

	// Surface session errors in notifications; the session itself keeps
	// running degraded unless capture died.
	go func() {
		for err := range sess.Errors() {
			d.notifier.Error(err.Error())
		}
	}()

	go d.notifier.ListeningStarted(string(kind))
	return nil
}

func (d *Daemon) stopSession() {
	d.mu.Lock()
	sess := d.sess
	d.sess = nil
	d.cap = nil
	d.mu.Unlock()

	if sess == nil {
		return
	}
	if err := sess.StopAndRelease(); err != nil {
		log.Printf("Daemon: session teardown: %v", err)
	}
	go d.notifier.ListeningStopped()
}

// writeTranscript dumps the live transcript, one slot per line, ending with a
// blank line so clients know where it stops.
func (d *Daemon) writeTranscript(c net.Conn) {
	d.mu.Lock()
	sess := d.sess
	d.mu.Unlock()

	if sess == nil {
		fmt.Fprint(c, "\n")
		return
	}

	for _, slot := range sess.Transcript().Slots() {
		marker := "~"
		if slot.Finalized {
			marker = "*"
		}
		fmt.Fprintf(c, "%s %s\n", marker, slot.Text)
	}
	fmt.Fprint(c, "\n")
}
