// Command lendkeeper is a CLI client for the lending service.
package main

import (
	"bufio"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/term"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/and161185/lendkeeper/internal/client"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ---- config/token store ----

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	Username    string    `json:"username"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "lendkeeper")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "lendkeeper")
}

func tokenPath() string { return filepath.Join(cfgDir(), "token.json") }

func saveToken(tf tokenFile) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(tf, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(tokenPath(), b, 0o600)
}

func loadToken() (tokenFile, error) {
	var tf tokenFile
	b, err := os.ReadFile(tokenPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return tf, errors.New("not logged in (run login)")
		}
		return tf, err
	}
	if err := json.Unmarshal(b, &tf); err != nil {
		return tf, err
	}
	if tf.AccessToken == "" || !time.Now().Before(tf.ExpiresAt) {
		return tf, errors.New("no valid token (login required)")
	}
	return tf, nil
}

func removeToken() error {
	err := os.Remove(tokenPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// ---- grpc dial ----

func loadTLS(caPath string, skipVerify bool) (credentials.TransportCredentials, error) {
	if skipVerify {
		return credentials.NewTLS(&tls.Config{InsecureSkipVerify: true}), nil //nolint:gosec // dev flag
	}
	if caPath == "" {
		return credentials.NewClientTLSFromCert(nil, ""), nil
	}
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("bad CA cert")
	}
	return credentials.NewTLS(&tls.Config{RootCAs: pool}), nil
}

// transport picks plaintext, TLS with a custom CA, or TLS without verification.
func transport(caPath string, skipVerify, plaintext bool) (credentials.TransportCredentials, error) {
	if plaintext {
		return insecure.NewCredentials(), nil
	}
	return loadTLS(caPath, skipVerify)
}

// ---- app ----

type app struct {
	addr       string
	caPath     string
	skipVerify bool
	plaintext  bool
	timeout    time.Duration

	in     io.Reader
	out    io.Writer
	errOut io.Writer

	// dial opens a connection to the server; tests replace it.
	dial func(ctx context.Context) (*client.Client, io.Closer, error)
	// readPassword prompts for a secret.
	readPassword func(prompt string) (string, error)
}

func newApp() *app {
	a := &app{in: os.Stdin, out: os.Stdout, errOut: os.Stderr}
	a.dial = a.dialGRPC
	a.readPassword = a.promptPassword
	return a
}

func (a *app) dialGRPC(context.Context) (*client.Client, io.Closer, error) {
	creds, err := transport(a.caPath, a.skipVerify, a.plaintext)
	if err != nil {
		return nil, nil, err
	}
	cc, err := client.Dial(a.addr, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, nil, err
	}
	return client.New(cc), cc, nil
}

// promptPassword reads without echo from a terminal and reads one line otherwise.
func (a *app) promptPassword(prompt string) (string, error) {
	fmt.Fprint(a.errOut, prompt)
	if f, ok := a.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(a.errOut)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := bufio.NewReader(a.in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// authed dials and attaches the saved token.
func (a *app) authed(ctx context.Context) (*client.Client, io.Closer, error) {
	tf, err := loadToken()
	if err != nil {
		return nil, nil, err
	}
	cl, closer, err := a.dial(ctx)
	if err != nil {
		return nil, nil, err
	}
	return cl.WithToken(tf.AccessToken), closer, nil
}

func (a *app) printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.out, string(b))
	return err
}

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

// main runs the command tree until it finishes or the process is interrupted.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := newApp()
	if err := newRootCmd(a).ExecuteContext(ctx); err != nil {
		printErr(a.errOut, err)
		stop()
		os.Exit(1)
	}
}

func printErr(w io.Writer, err error) {
	if s, ok := status.FromError(err); ok {
		fmt.Fprintf(w, "rpc error: code=%s msg=%s\n", s.Code(), s.Message())
		return
	}
	fmt.Fprintln(w, err)
}
