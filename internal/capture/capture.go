// Package capture implements the PTY-mediated process supervisor of
// spec.md §4.4: it forks a child into a pseudo-terminal so interactive
// tools behave as under a real terminal, relays bytes transparently,
// and persists a sanitized event stream alongside.
package capture

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/creack/pty"
	"golang.org/x/term"

	"github.com/ternarybob/memorybank/internal/logger"
	"github.com/ternarybob/memorybank/internal/redact"
	"github.com/ternarybob/memorybank/internal/sanitize"
	"github.com/ternarybob/memorybank/internal/storage"
)

const pollInterval = 100 * time.Millisecond

// Session runs one captured child process end to end and returns its
// exit code. argv[0] is resolved via PATH. cwd may be empty to inherit
// the supervisor's working directory.
func Session(s *storage.Storage, argv []string, cwd string, redactor *redact.Redactor) (int, error) {
	if len(argv) == 0 {
		return 0, fmt.Errorf("capture: empty command")
	}

	sessionID := storage.NewSessionID(time.Now())
	if cwd == "" {
		if wd, err := os.Getwd(); err == nil {
			cwd = wd
		}
	}

	sess := &storage.Session{
		SessionID: sessionID,
		Command:   argv,
		Cwd:       cwd,
		StartedAt: float64(time.Now().Unix()),
		Source:    "pty",
	}
	if err := s.CreateSession(sess); err != nil {
		return 0, fmt.Errorf("capture: create session: %w", err)
	}

	t0 := time.Now()
	writeEventBestEffort(s, sessionID, 0, "system", "session_start", "")

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = cwd
	cmd.Env = os.Environ()

	ptmx, err := pty.Start(cmd)
	if err != nil {
		// exec failure before fork: mirror the reference design's "exit
		// 127" convention for a command that could not be started.
		finalize(s, sessionID, t0, 127)
		return 127, fmt.Errorf("capture: start pty: %w", err)
	}

	fmt.Fprintf(os.Stderr, "memorybank: capturing session %s (%v)\n", sessionID, argv)

	stdinFd := int(os.Stdin.Fd())
	var oldState *term.State
	isTTY := term.IsTerminal(stdinFd)
	if isTTY {
		oldState, err = term.MakeRaw(stdinFd)
		if err != nil {
			isTTY = false
		}
	}
	restore := func() {
		if isTTY && oldState != nil {
			term.Restore(stdinFd, oldState)
		}
	}
	defer restore()

	if isTTY {
		pty.InheritSize(os.Stdin, ptmx)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGWINCH, os.Interrupt)
	stopSig := make(chan struct{})
	go func() {
		for {
			select {
			case sig, ok := <-sigCh:
				if !ok {
					return
				}
				switch sig {
				case syscall.SIGWINCH:
					pty.InheritSize(os.Stdin, ptmx)
				case os.Interrupt:
					if cmd.Process != nil {
						cmd.Process.Signal(os.Interrupt)
					}
				}
			case <-stopSig:
				return
			}
		}
	}()
	defer func() {
		signal.Stop(sigCh)
		close(stopSig)
	}()

	outStripper := sanitize.NewStripper()
	inStripper := sanitize.NewStripper()

	stdinDone := make(chan struct{})
	go relayStdin(ptmx, inStripper, s, sessionID, t0, redactor, stdinDone)

	exitCode := relayMaster(ptmx, outStripper, s, sessionID, t0, redactor)

	<-stdinDone

	flushStripper(s, sessionID, t0, "stdout", "terminal", outStripper, redactor)
	flushStripper(s, sessionID, t0, "stdin", "user", inStripper, redactor)

	if cmd.Process != nil {
		waitErr := cmd.Wait()
		exitCode = exitCodeFromWait(waitErr)
	}

	finalize(s, sessionID, t0, exitCode)
	fmt.Fprintf(os.Stderr, "memorybank: session %s ended (exit %d)\n", sessionID, exitCode)

	return exitCode, nil
}

// relayMaster copies pty master bytes to stdout first (transparent
// relay takes priority), then feeds a sanitizer and persists non-empty
// output as events. Returns 128+signo-style placeholder 0 — the real
// exit code is read from cmd.Wait after this returns (EIO means the
// child has exited).
func relayMaster(ptmx *os.File, stripper *sanitize.Stripper, s *storage.Storage, sessionID string, t0 time.Time, redactor *redact.Redactor) int {
	buf := make([]byte, 4096)
	for {
		n, err := ptmx.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			os.Stdout.Write(chunk)
			if text := stripper.Write(chunk); text != "" {
				writeStreamEvent(s, sessionID, t0, "stdout", "terminal", text, redactor)
			}
		}
		if err != nil {
			return 0
		}
	}
}

// relayStdin copies stdin bytes to the pty master, feeding a separate
// sanitizer. On stdin EOF it sends EOT to the master and stops — the
// master is read until it closes by relayMaster, per spec §4.4 step 4.
func relayStdin(ptmx *os.File, stripper *sanitize.Stripper, s *storage.Storage, sessionID string, t0 time.Time, redactor *redact.Redactor, done chan<- struct{}) {
	defer close(done)
	buf := make([]byte, 4096)
	for {
		n, err := os.Stdin.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			ptmx.Write(chunk)
			if text := stripper.Write(chunk); text != "" {
				writeStreamEvent(s, sessionID, t0, "stdin", "user", text, redactor)
			}
		}
		if err != nil {
			if err != io.EOF {
				return
			}
			ptmx.Write([]byte{0x04})
			return
		}
	}
}

func writeStreamEvent(s *storage.Storage, sessionID string, t0 time.Time, stream, role, text string, redactor *redact.Redactor) {
	if redactor != nil {
		text = redactor.Redact(text)
	}
	writeEventBestEffort(s, sessionID, time.Since(t0).Seconds(), stream, role, text)
}

func flushStripper(s *storage.Storage, sessionID string, t0 time.Time, stream, role string, stripper *sanitize.Stripper, redactor *redact.Redactor) {
	if text := stripper.Flush(); text != "" {
		writeStreamEvent(s, sessionID, t0, stream, role, text, redactor)
	}
}

// writeEventBestEffort swallows write errors: an I/O error persisting
// an event must never interfere with transparent byte relay (spec.md
// §4.4, §7's "Transient I/O" policy).
func writeEventBestEffort(s *storage.Storage, sessionID string, ts float64, stream, role, content string) {
	ev := storage.Event{
		EventID:   storage.NewEventID(sessionID, ts),
		Ts:        ts,
		SessionID: sessionID,
		Stream:    stream,
		Role:      role,
		Content:   content,
	}
	if err := s.WriteEvent(ev); err != nil {
		logger.GetLogger().Warn().Err(err).Str("session_id", sessionID).Msg("capture: dropped event on write failure")
	}
}

func finalize(s *storage.Storage, sessionID string, t0 time.Time, exitCode int) {
	endedAt := float64(time.Now().Unix())
	if err := s.FinalizeSession(sessionID, endedAt, exitCode); err != nil {
		logger.GetLogger().Warn().Err(err).Str("session_id", sessionID).Msg("capture: failed to finalize session")
	}
}

func exitCodeFromWait(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				return 128 + int(status.Signal())
			}
			return status.ExitStatus()
		}
		return exitErr.ExitCode()
	}
	return 1
}
