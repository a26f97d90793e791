// Command sshx is a small remote-execution and file-transfer tool built on
// the sshclient library.
//
// Usage:
//
//	sshx --host example.com --user deploy exec "uptime"
//	sshx --host example.com --user deploy get /remote/file > local
//	sshx --host example.com --user deploy put local /remote/file
//	sshx --host example.com --user deploy stream "tail -f /var/log/syslog"
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/abiquo/sshclient"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		host        = pflag.String("host", "", "SSH server hostname or IP (required)")
		port        = pflag.Int("port", 22, "SSH server port")
		user        = pflag.String("user", os.Getenv("USER"), "SSH username")
		password    = pflag.Bool("password", false, "Prompt for a password instead of using a key")
		keyPath     = pflag.String("key", "~/.ssh/id_ed25519", "Path to SSH private key file")
		knownHosts  = pflag.String("known-hosts", "", "Path to known_hosts file (default ~/.ssh/known_hosts)")
		insecure    = pflag.Bool("insecure", false, "Skip host key verification (testing only)")
		timeout     = pflag.Duration("timeout", 30*time.Second, "Connect and session timeout")
		maxAttempts = pflag.Int("max-attempts", 5, "Total connection attempts per acquisition")
		retryAuth   = pflag.Bool("retry-auth", false, "Treat authentication failures as retryable")
	)
	pflag.CommandLine.SortFlags = false
	pflag.Parse()

	args := pflag.Args()
	if *host == "" || len(args) == 0 {
		pflag.Usage()
		return errors.New("a --host and a mode (get|put|exec|stream) are required")
	}

	config := sshclient.Config{
		Host:                  *host,
		Port:                  *port,
		User:                  *user,
		Timeout:               *timeout,
		KnownHostsFile:        *knownHosts,
		InsecureIgnoreHostKey: *insecure,
		Retry: sshclient.RetryPolicy{
			MaxAttempts: *maxAttempts,
			RetryAuth:   *retryAuth,
		},
	}

	if *password {
		fmt.Fprintf(os.Stderr, "%s@%s's password: ", *user, *host)
		pw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		config.Password = string(pw)
	} else {
		config.KeyPath = *keyPath
	}

	client, err := sshclient.New(config)
	if err != nil {
		return err
	}
	defer client.Disconnect()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mode, rest := args[0], args[1:]
	switch mode {
	case "get":
		return runGet(ctx, client, rest)
	case "put":
		return runPut(ctx, client, rest)
	case "exec":
		return runExec(ctx, client, rest)
	case "stream":
		return runStream(ctx, client, rest)
	default:
		return fmt.Errorf("unknown mode %q (want get|put|exec|stream)", mode)
	}
}

func runGet(ctx context.Context, client *sshclient.Client, args []string) error {
	if len(args) != 1 {
		return errors.New("get requires exactly one remote path")
	}
	if err := client.Connect(ctx); err != nil {
		return err
	}

	r, err := client.Get(ctx, args[0])
	if err != nil {
		return err
	}
	defer r.Close()

	_, err = io.Copy(os.Stdout, r)
	return err
}

func runPut(ctx context.Context, client *sshclient.Client, args []string) error {
	if len(args) != 2 {
		return errors.New("put requires a local path and a remote path")
	}
	if err := client.Connect(ctx); err != nil {
		return err
	}
	return client.Put(ctx, args[1], sshclient.FilePayload(args[0]))
}

func runExec(ctx context.Context, client *sshclient.Client, args []string) error {
	if len(args) != 1 {
		return errors.New("exec requires exactly one command")
	}
	if err := client.Connect(ctx); err != nil {
		return err
	}

	resp, err := client.Exec(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Print(resp.Stdout)
	if resp.ExitStatus != 0 {
		return fmt.Errorf("remote command exited with status %d", resp.ExitStatus)
	}
	return nil
}

func runStream(ctx context.Context, client *sshclient.Client, args []string) error {
	if len(args) != 1 {
		return errors.New("stream requires exactly one command")
	}

	stream, err := client.ExecStream(ctx, args[0])
	if err != nil {
		return err
	}
	defer stream.Close()

	g, ctx := errgroup.WithContext(ctx)
	context.AfterFunc(ctx, func() { _ = stream.Close() })

	g.Go(func() error {
		_, err := io.Copy(stream.Stdin, os.Stdin)
		stream.Stdin.Close()
		return err
	})
	g.Go(func() error {
		_, err := io.Copy(os.Stdout, stream.Stdout)
		return err
	})
	g.Go(func() error {
		_, err := io.Copy(os.Stderr, stream.Stderr)
		return err
	})

	if err := g.Wait(); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		return err
	}
	if status, ok := stream.ExitStatus(); ok && status != 0 {
		return fmt.Errorf("remote command exited with status %d", status)
	}
	return nil
}
