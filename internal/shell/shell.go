// Package shell implements the line-oriented command surface used to
// commission a device from a serial console or stdin.
package shell

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/bft-labs/devlink/internal/domain"
	"github.com/bft-labs/devlink/internal/ports"
	"github.com/bft-labs/devlink/pkg/log"
)

// CodeUnknownCommand is reported for lines that name no command.
const CodeUnknownCommand = -6

// maxLineBytes bounds a single command line. Escaped PEM blocks fit well
// within it.
const maxLineBytes = 64 * 1024

// Shell executes commissioning commands against a Commissioner.
type Shell struct {
	gate     ports.Commissioner
	resetter ports.Resetter
	logger   log.Logger

	mu  sync.Mutex
	out io.Writer
}

// New creates a shell writing responses to out.
func New(gate ports.Commissioner, resetter ports.Resetter, out io.Writer, logger log.Logger) *Shell {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Shell{
		gate:     gate,
		resetter: resetter,
		out:      out,
		logger:   log.With(logger, log.String("component", "shell")),
	}
}

// Unescape expands the console escapes \n (newline) and \s (space).
func Unescape(s string) string {
	return strings.NewReplacer(`\n`, "\n", `\s`, " ").Replace(s)
}

// Run executes lines from r until EOF or ctx is cancelled.
func (s *Shell) Run(ctx context.Context, r io.Reader) error {
	lines := make(chan string)
	errc := make(chan error, 1)

	go func() {
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 4096), maxLineBytes)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line := <-lines:
			s.Exec(line)
		case err := <-errc:
			return err
		}
	}
}

// Exec runs one command line and returns its result code.
func (s *Shell) Exec(line string) int {
	name, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "":
		return domain.CodeOK
	case "help":
		s.printf("commands: set_cert <pem>, set_key <pem>, set_cred <kind> <value>, reset, reboot, bootloader\n")
		return domain.CodeOK
	case "set_cert":
		return s.install(domain.CredentialCert, arg)
	case "set_key":
		return s.install(domain.CredentialKey, arg)
	case "set_cred":
		kindName, value, _ := strings.Cut(arg, " ")
		kind, err := domain.ParseCredentialKind(kindName)
		if err != nil {
			return s.fail(err)
		}
		value = strings.TrimSpace(value)
		if kind.Identity() {
			return s.storeIdentity(kind, value)
		}
		return s.install(kind, value)
	case "reset":
		if err := s.gate.Decommission(); err != nil {
			return s.fail(err)
		}
		s.printf("device decommissioned\n")
		return domain.CodeOK
	case "reboot":
		s.reset(ports.ResetNormal)
		return domain.CodeOK
	case "bootloader":
		s.reset(ports.ResetBootloader)
		return domain.CodeOK
	default:
		s.printf("unknown command: %s\n", name)
		return CodeUnknownCommand
	}
}

func (s *Shell) install(kind domain.CredentialKind, arg string) int {
	data := []byte(Unescape(arg))
	if err := s.gate.InstallCredential(kind, data); err != nil {
		return s.fail(err)
	}
	s.printf("stored %s (%d bytes)\n", kind, len(data))
	return domain.CodeOK
}

func (s *Shell) storeIdentity(kind domain.CredentialKind, arg string) int {
	data := []byte(Unescape(arg))
	if err := s.gate.StoreIdentity(kind, data); err != nil {
		return s.fail(err)
	}
	if len(data) == 0 {
		s.printf("cleared %s\n", kind)
	} else {
		s.printf("stored %s (%d bytes), applied at next boot\n", kind, len(data))
	}
	return domain.CodeOK
}

func (s *Shell) reset(mode ports.ResetMode) {
	s.logger.Info("reset requested from shell", log.Stringer("mode", mode))
	s.printf("resetting (%s)\n", mode)
	if s.resetter != nil {
		s.resetter.Reset(mode)
	}
}

func (s *Shell) fail(err error) int {
	code := domain.Code(err)
	if code == domain.CodeStorage {
		s.logger.Error("shell command failed", log.Err(err))
	}
	s.printf("error %d: %v\n", code, err)
	return code
}

func (s *Shell) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, format, args...)
}
