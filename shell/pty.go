// Package shell manages the pseudo-terminal to the child shell. The PTY is
// treated as a byte-stream peer: bytes in both directions, size signaled
// out-of-band on resize.
package shell

import (
	"io"
	"os"
	"os/exec"
	"os/user"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/creack/pty"
	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"
)

// PtySession manages a pseudo-terminal connection to a shell
type PtySession struct {
	cmd *exec.Cmd
	pty *os.File

	mu       sync.Mutex
	exited   bool
	exitedMu sync.Mutex

	log *logrus.Entry
}

// Options configure the spawned shell.
type Options struct {
	// TermEnv is the TERM value ("xterm-256color" by default).
	TermEnv string
	// Dir is the initial working directory; empty means the user home.
	Dir string
}

// NewPtySession spawns the user's login shell on a fresh PTY.
func NewPtySession(cols, rows uint16, opts Options) (*PtySession, error) {
	shellPath := findShell()

	currentUser, err := user.Current()
	if err != nil {
		return nil, trace.Wrap(err)
	}

	cmd := exec.Command(shellPath, "-i")
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}

	term := opts.TermEnv
	if term == "" {
		term = "xterm-256color"
	}
	env := []string{
		"PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin:" + os.Getenv("PATH"),
		"TERM=" + term,
		"COLORTERM=truecolor",
		"COLUMNS=" + strconv.Itoa(int(cols)),
		"LINES=" + strconv.Itoa(int(rows)),
		"HOME=" + currentUser.HomeDir,
		"USER=" + currentUser.Username,
		"SHELL=" + shellPath,
		"LANG=en_US.UTF-8",
	}
	if lang := os.Getenv("LANG"); lang != "" {
		env[len(env)-1] = "LANG=" + lang
	}
	cmd.Env = env

	cmd.Dir = opts.Dir
	if cmd.Dir == "" {
		cmd.Dir = currentUser.HomeDir
	}

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: cols, Rows: rows})
	if err != nil {
		return nil, trace.Wrap(err, "starting shell %s", shellPath)
	}

	session := &PtySession{
		cmd: cmd,
		pty: ptmx,
		log: logrus.WithField("component", "shell"),
	}

	go func() {
		err := cmd.Wait()
		session.exitedMu.Lock()
		session.exited = true
		session.exitedMu.Unlock()
		session.log.WithError(err).Info("shell exited")
	}()

	return session, nil
}

// findShell resolves the user's shell from /etc/passwd with fallbacks.
func findShell() string {
	if currentUser, err := user.Current(); err == nil {
		if shell := getUserShell(currentUser.Username); shell != "" {
			if _, err := os.Stat(shell); err == nil {
				return shell
			}
		}
	}
	for _, shell := range []string{"/bin/bash", "/usr/bin/bash", "/bin/zsh", "/usr/bin/zsh", "/bin/sh"} {
		if _, err := os.Stat(shell); err == nil {
			return shell
		}
	}
	return "/bin/sh"
}

// getUserShell reads the user's shell from /etc/passwd
func getUserShell(username string) string {
	data, err := os.ReadFile("/etc/passwd")
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Split(line, ":")
		if len(fields) >= 7 && fields[0] == username {
			return fields[6]
		}
	}
	return ""
}

// Read reads from the PTY
func (p *PtySession) Read(buf []byte) (int, error) {
	return p.pty.Read(buf)
}

// Write writes to the PTY
func (p *PtySession) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pty.Write(data)
}

// Resize resizes the PTY; the kernel signals the child with SIGWINCH.
func (p *PtySession) Resize(cols, rows uint16) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return trace.Wrap(pty.Setsize(p.pty, &pty.Winsize{Cols: cols, Rows: rows}))
}

// HasExited returns true if the shell process has exited
func (p *PtySession) HasExited() bool {
	p.exitedMu.Lock()
	defer p.exitedMu.Unlock()
	return p.exited
}

// Close closes the PTY session
func (p *PtySession) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd.Process != nil {
		p.cmd.Process.Kill()
	}
	return p.pty.Close()
}

// Reader returns an io.Reader for the PTY
func (p *PtySession) Reader() io.Reader {
	return p.pty
}
