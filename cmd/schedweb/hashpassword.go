package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"schedweb/internal/auth"
	"schedweb/internal/config"
	appLog "schedweb/internal/log"
)

// hashPasswordCmd implements `schedweb hash-password`: it prompts for
// credentials and stores an argon2id hash under basic_auth in the config.
func hashPasswordCmd(args []string) error {
	fs := flag.NewFlagSet("hash-password", flag.ContinueOnError)
	configPath := fs.String("config", "/etc/schedweb/config.yaml", "Path to config file")
	user := fs.String("user", "", "Basic auth username (prompted if empty)")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: schedweb hash-password [OPTIONS]\n\n")
		fmt.Fprintf(fs.Output(), "Stores an argon2id password hash in the config's basic_auth section.\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	in := bufio.NewReader(os.Stdin)
	fd := int(os.Stdin.Fd())

	username := strings.TrimSpace(*user)
	if username == "" {
		fmt.Fprint(os.Stderr, "Username: ")
		line, err := readLine(in)
		if err != nil {
			return err
		}
		username = strings.TrimSpace(line)
	}
	if username == "" {
		return errors.New("username cannot be empty")
	}

	password, err := readPassword(in, fd, "Password: ")
	if err != nil {
		return err
	}
	if password == "" {
		return errors.New("password cannot be empty")
	}
	confirm, err := readPassword(in, fd, "Confirm password: ")
	if err != nil {
		return err
	}
	if password != confirm {
		return errors.New("passwords do not match")
	}

	return setPasswordHash(*configPath, username, password)
}

// readPassword reads without echo on a terminal and a plain line otherwise,
// so the command also works with piped input.
func readPassword(in *bufio.Reader, fd int, prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		return string(b), err
	}
	return readLine(in)
}

func readLine(in *bufio.Reader) (string, error) {
	line, err := in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// setPasswordHash replaces basic_auth in the config file with username and
// a fresh hash of password. Environment overrides are not persisted.
func setPasswordHash(path, username, password string) error {
	conf, err := config.LoadFile(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	conf.BasicAuth = &config.BasicAuthConfig{Username: username, PasswordHash: hash}

	if err := conf.Save(path); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	appLog.Info("basic auth password hash written", "config_path", path, "user", username)
	return nil
}
