package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// resolveSecret returns the HMAC secret from envVar, or prompts on the
// terminal when the variable is unset.
func resolveSecret(envVar string, prompt io.Writer) (string, error) {
	if envVar != "" {
		if value, ok := os.LookupEnv(envVar); ok {
			if strings.TrimSpace(value) == "" {
				return "", fmt.Errorf("%s is set but empty", envVar)
			}
			return value, nil
		}
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		if envVar != "" {
			return "", fmt.Errorf("signing secret required; set %s or run interactively", envVar)
		}
		return "", errors.New("signing secret required and no terminal available")
	}
	fmt.Fprint(prompt, "Enter token signing secret: ")
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(prompt)
	if err != nil {
		return "", fmt.Errorf("failed to read secret: %w", err)
	}
	secret := string(raw)
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("signing secret cannot be empty")
	}
	return secret, nil
}
