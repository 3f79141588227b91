// Command hrctl signs in to the HR portal from a terminal and shows what the
// signed-in role can reach.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"hrportal/internal/domain/auth"
	"hrportal/internal/domain/session"
	"hrportal/internal/platform/logging"
	"hrportal/internal/transport/http/client"
)

const usage = `usage: hrctl [-server URL] [-token-file PATH] <command>

commands:
  login -email EMAIL [-mfa CODE]   sign in (password from HRCTL_PASSWORD or prompt)
  logout                           end the session
  whoami                           print the signed-in user
  menu                             print the navigation for the signed-in role
`

func main() {
	slog.SetDefault(logging.New(os.Stderr, envOr("HRCTL_LOG_LEVEL", "error"), "text"))
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "hrctl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	global := flag.NewFlagSet("hrctl", flag.ContinueOnError)
	global.Usage = func() { fmt.Fprint(global.Output(), usage) }
	serverURL := global.String("server", envOr("HRPORTAL_URL", "http://localhost:8080"), "portal base URL")
	tokenFile := global.String("token-file", defaultTokenFile(), "where the session token is kept")
	timeout := global.Duration("timeout", 15*time.Second, "request timeout")
	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		global.Usage()
		return errors.New("missing command")
	}

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	api := client.New(*serverURL, nil)
	store := session.New(api, session.NewFileTokens(*tokenFile))
	unsubscribe := store.Subscribe(func(s session.State) {
		fmt.Fprintf(os.Stderr, "session: %s\n", s)
	})
	defer unsubscribe()

	cmd, rest := global.Arg(0), global.Args()[1:]
	switch cmd {
	case "login":
		return login(ctx, store, rest, out)
	case "logout":
		store.Restore(ctx)
		store.Logout(ctx)
		fmt.Fprintln(out, "signed out")
		return nil
	case "whoami":
		state := store.Restore(ctx)
		if !state.Authenticated {
			return errors.New("not signed in")
		}
		fmt.Fprintf(out, "%s <%s> role=%s\n", state.Identity.Name, state.Identity.Email, state.Identity.Role)
		return nil
	case "menu":
		state := store.Restore(ctx)
		if !state.Authenticated {
			return errors.New("not signed in")
		}
		entries, err := api.Shell(ctx, store.Token())
		if err != nil {
			return err
		}
		for _, entry := range entries {
			fmt.Fprintf(out, "%-22s %s\n", entry.Label, entry.Path)
		}
		return nil
	default:
		global.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func login(ctx context.Context, store *session.Store, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	email := fs.String("email", "", "account email")
	mfa := fs.String("mfa", "", "authenticator code")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*email) == "" {
		return errors.New("login: -email is required")
	}
	password := os.Getenv("HRCTL_PASSWORD")
	if password == "" {
		var err error
		if password, err = promptPassword("Password: "); err != nil {
			return err
		}
	}

	identity, err := store.Login(ctx, auth.Credentials{Email: *email, Password: password, MFACode: *mfa})
	switch {
	case errors.Is(err, auth.ErrMFARequired):
		return errors.New("login: this account needs -mfa CODE")
	case errors.Is(err, auth.ErrInvalidCredentials):
		return errors.New("login: invalid email or password")
	case err != nil:
		return fmt.Errorf("login: %w", err)
	}
	fmt.Fprintf(out, "signed in as %s (%s)\n", identity.Name, identity.Role)
	return nil
}

func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(password), nil
}

func defaultTokenFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "hrportal", "token")
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
