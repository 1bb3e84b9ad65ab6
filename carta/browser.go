package carta

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"sync"
	"time"
)

// DefaultBrowserTimeout bounds the wait for the frontend to log its
// connection details.
const DefaultBrowserTimeout = 10 * time.Second

// Browser opens a frontend and creates a scripting session for it.
type Browser interface {
	NewSession(ctx context.Context, frontendURL string, grpcPort int, opts ...Option) (*Session, error)
	Close() error
}

// NewSession opens frontendURL in b and connects to the backend the
// frontend reports, on grpcPort. Closing the session closes the browser.
func NewSession(ctx context.Context, b Browser, frontendURL string, grpcPort int, opts ...Option) (*Session, error) {
	return b.NewSession(ctx, frontendURL, grpcPort, opts...)
}

var connectionLog = regexp.MustCompile(`Connected to server wss?://(.*?):\d+ with session ID (\d+)`)

// ParseConnectionLog extracts the backend host and session ID from a
// frontend console line.
func ParseConnectionLog(line string) (host string, sessionID uint32, ok bool) {
	m := connectionLog.FindStringSubmatch(line)
	if m == nil {
		return "", 0, false
	}
	id, err := strconv.ParseUint(m[2], 10, 32)
	if err != nil {
		return "", 0, false
	}
	return m[1], uint32(id), true
}

// CommandBrowser runs a browser executable with the frontend URL as its last
// argument and reads the frontend's console log from the process output.
// A CommandBrowser opens at most one frontend.
type CommandBrowser struct {
	Path    string
	Args    []string
	Timeout time.Duration
	Logger  *slog.Logger

	mu   sync.Mutex
	cmd  *exec.Cmd
	done chan struct{}
}

// ChromeHeadless returns a browser running headless Chrome with console
// messages logged to stderr.
func ChromeHeadless() *CommandBrowser {
	return &CommandBrowser{
		Path: "google-chrome",
		Args: []string{"--headless=new", "--disable-gpu", "--enable-logging=stderr", "--v=1"},
	}
}

// Chrome returns a browser running Chrome with a visible window.
func Chrome() *CommandBrowser {
	return &CommandBrowser{
		Path: "google-chrome",
		Args: []string{"--enable-logging=stderr", "--v=1", "--new-window"},
	}
}

// Firefox returns a browser running headless Firefox. Console output on
// stdout requires the devtools.console.stdout.content preference.
func Firefox() *CommandBrowser {
	return &CommandBrowser{
		Path: "firefox",
		Args: []string{"-headless", "-new-instance"},
	}
}

type connectionInfo struct {
	host string
	id   uint32
}

// NewSession starts the browser and waits for the frontend to report its
// backend host and session ID. On failure the browser is closed.
func (b *CommandBrowser) NewSession(ctx context.Context, frontendURL string, grpcPort int, opts ...Option) (*Session, error) {
	logger := b.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	timeout := b.Timeout
	if timeout <= 0 {
		timeout = DefaultBrowserTimeout
	}

	found, exited, err := b.start(frontendURL, logger)
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	connect := func(info connectionInfo) (*Session, error) {
		logger.Info("frontend connected", "host", info.host, "session_id", info.id)
		sess, err := Connect(info.host, grpcPort, info.id, append(opts, withBrowser(b))...)
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		return sess, nil
	}

	select {
	case info := <-found:
		return connect(info)
	case <-exited:
		// The line may have been found just before the output ended.
		select {
		case info := <-found:
			return connect(info)
		default:
		}
		_ = b.Close()
		return nil, fmt.Errorf("%w: browser exited", ErrNoConnectionInfo)
	case <-timer.C:
		_ = b.Close()
		return nil, ErrNoConnectionInfo
	case <-ctx.Done():
		_ = b.Close()
		return nil, ctx.Err()
	}
}

func (b *CommandBrowser) start(frontendURL string, logger *slog.Logger) (<-chan connectionInfo, <-chan struct{}, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cmd != nil {
		return nil, nil, fmt.Errorf("%w: browser already started", ErrScripting)
	}

	args := append(append([]string{}, b.Args...), frontendURL)
	cmd := exec.Command(b.Path, args...)
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw
	cmd.WaitDelay = time.Second
	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("%w: start browser %s: %w", ErrScripting, b.Path, err)
	}
	logger.Debug("browser started", "path", b.Path, "pid", cmd.Process.Pid, "url", frontendURL)

	b.cmd = cmd
	b.done = make(chan struct{})
	go func() {
		_ = cmd.Wait()
		pw.Close()
		close(b.done)
	}()

	found := make(chan connectionInfo, 1)
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		sent := false
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			if sent {
				continue
			}
			if host, id, ok := ParseConnectionLog(scanner.Text()); ok {
				found <- connectionInfo{host: host, id: id}
				sent = true
			}
		}
		// Keep draining so the browser never blocks on a full pipe.
		_, _ = io.Copy(io.Discard, pr)
	}()
	return found, exited, nil
}

// Close kills the browser process and waits for it to exit.
func (b *CommandBrowser) Close() error {
	b.mu.Lock()
	cmd, done := b.cmd, b.done
	b.mu.Unlock()
	if cmd == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	default:
	}
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("carta: kill browser: %w", err)
	}
	<-done
	return nil
}
