package bus

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
)

const SockName = "control.sock"
const PidName = "sidecoach.pid"
const ProtoVer = "0.1"

// Control commands understood by the daemon.
const (
	CmdToggle     byte = 't'
	CmdStatus     byte = 's'
	CmdTranscript byte = 'x'
	CmdVersion    byte = 'v'
	CmdQuit       byte = 'q'
)

// ~/.cache/sidecoach/control.sock
func SockPath() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "sidecoach", SockName), nil
}

// ~/.cache/sidecoach/sidecoach.pid
func PidPath() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "sidecoach", PidName), nil
}

func Listen() (net.Listener, error) {
	sp, err := SockPath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(sp), 0o700); err != nil {
		return nil, err
	}
	_ = os.Remove(sp) // stale socket from last run
	return net.Listen("unix", sp)
}

func Dial() (net.Conn, error) {
	sp, err := SockPath()
	if err != nil {
		return nil, err
	}
	return net.Dial("unix", sp)
}

func SendCommand(cmd byte) (string, error) {
	c, err := Dial()
	if err != nil {
		return "", err
	}
	defer c.Close()

	if _, err := c.Write([]byte{cmd, '\n'}); err != nil {
		return "", err
	}

	resp, err := bufio.NewReader(c).ReadString('\n')
	return resp, err
}

// SendCommandAll is like SendCommand but reads every response line; the
// transcript dump spans multiple lines terminated by a blank one.
func SendCommandAll(cmd byte) (string, error) {
	c, err := Dial()
	if err != nil {
		return "", err
	}
	defer c.Close()

	if _, err := c.Write([]byte{cmd, '\n'}); err != nil {
		return "", err
	}

	var out []byte
	r := bufio.NewReader(c)
	for {
		line, err := r.ReadString('\n')
		out = append(out, line...)
		if err != nil || line == "\n" {
			break
		}
	}
	return string(out), nil
}

func CheckExistingDaemon() error {
	pidPath, err := PidPath()
	if err != nil {
		return err
	}

	pidData, err := os.ReadFile(pidPath)
	if os.IsNotExist(err) {
		return nil // no existing daemon
	}
	if err != nil {
		return err
	}

	pid, err := strconv.Atoi(string(pidData))
	if err != nil {
		return nil // invalid pid file, assume stale
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}

	// Signal 0 probes liveness without delivering anything
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return nil // process not alive, stale pid file
	}

	return fmt.Errorf("daemon already running with PID %d", pid)
}

func CreatePidFile() error {
	pidPath, err := PidPath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(pidPath), 0o700); err != nil {
		return err
	}

	return os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())), 0o600)
}

func RemovePidFile() error {
	pidPath, err := PidPath()
	if err != nil {
		return err
	}
	return os.Remove(pidPath)
}
