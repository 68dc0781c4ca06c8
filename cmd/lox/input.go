package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/term"

	"github.com/benaskins/lox/internal/secret"
)

// Swapped out by tests.
var (
	stdin           io.Reader = os.Stdin
	promptOut       io.Writer = os.Stderr
	stdinIsTerminal           = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) }
	readPassword              = func() ([]byte, error) { return term.ReadPassword(int(os.Stdin.Fd())) }
)

var errNoID = errors.New("no id given")

// readID returns args[i] unless it is missing or "-", in which case the id
// is read from the first line of stdin. On a terminal the user is prompted
// when required is set; otherwise the id is empty.
func readID(args []string, i int, required bool) (string, error) {
	if i < len(args) && args[i] != "-" {
		return args[i], nil
	}
	if stdinIsTerminal() {
		if !required {
			return "", nil
		}
		fmt.Fprint(promptOut, "Enter ID: ")
	}

	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading id: %w", err)
	}
	id := strings.TrimSpace(line)
	if id == "" && required {
		return "", errNoID
	}
	return id, nil
}

// readSecret returns the secret for set. An argument naming a regular file
// is replaced by the file's contents; any other argument is used as is.
// Without an argument (or with "-") the secret comes from piped stdin, or
// from a no-echo prompt on a terminal. Bytes are never trimmed.
func readSecret(args []string, i int) (*secret.Handle, error) {
	if i < len(args) && args[i] != "-" {
		return secretArg(args[i])
	}
	if stdinIsTerminal() {
		fmt.Fprint(promptOut, "Enter secret: ")
		b, err := readPassword()
		fmt.Fprintln(promptOut)
		if err != nil {
			secret.Wipe(b)
			return nil, fmt.Errorf("reading secret: %w", err)
		}
		return secret.NewHandle(b), nil
	}
	h, err := secret.ReadHandle(stdin)
	if err != nil {
		return nil, fmt.Errorf("reading stdin: %w", err)
	}
	return h, nil
}

func secretArg(arg string) (*secret.Handle, error) {
	path, ok, err := regularFile(arg)
	if err != nil {
		return nil, err
	}
	if !ok {
		return secret.NewHandle([]byte(arg)), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read file %s: %w", path, err)
	}
	defer f.Close()

	h, err := secret.ReadHandle(f)
	if err != nil {
		return nil, fmt.Errorf("unable to read file %s: %w", path, err)
	}
	return h, nil
}

// regularFile reports whether name is a regular file, following symlinks,
// and returns its resolved path.
func regularFile(name string) (string, bool, error) {
	info, err := os.Stat(name)
	if err != nil || !info.Mode().IsRegular() {
		return "", false, nil
	}
	resolved, err := filepath.EvalSymlinks(name)
	if err != nil {
		return "", false, fmt.Errorf("can't read the symbolic link %s: %w", name, err)
	}
	return resolved, true, nil
}
