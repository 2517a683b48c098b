package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/mjwhitta/cli"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/term"

	"github.com/ineffectivecoder/cifsgooser/pkg/auth"
	"github.com/ineffectivecoder/cifsgooser/pkg/config"
	"github.com/ineffectivecoder/cifsgooser/pkg/debug"
	"github.com/ineffectivecoder/cifsgooser/pkg/metrics"
	"github.com/ineffectivecoder/cifsgooser/pkg/smb"
)

// Version info
const (
	Version = "0.1.0"
	Banner  = "cifsgooser"
)

const gooseBanner = `
       __
    >(' )    cifsgooser v%s
      )/     NT LM 0.12 / RAP client
     /(
    /  ` + "`" + `----/
    \  ~=- /
  ~^~^~^~^~^~^~
`

// Colors for output
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

// Global state
var (
	verbose    bool
	mgr        *smb.Manager
	session    *smb.Session
	targetHost string
)

func main() {
	var (
		target        string
		username      string
		password      string
		configPath    string
		socks5        string
		execCmd       string
		metricsListen string
		logFile       string
		autoReconnect bool
	)

	cli.Align = true
	cli.Banner = "cifsgooser [OPTIONS]"
	cli.Info("CIFS (NT LM 0.12) client - shares, servers, users and passwords over RAP")
	cli.Authors = []string{"cifsgooser Team"}

	cli.Flag(&target, "t", "target", "", "Target host or share (host, \\\\host\\share, cifs://host/share)")
	cli.Flag(&username, "u", "user", "", "Username (empty for a null session)")
	cli.Flag(&password, "p", "password", "", "Password")
	cli.Flag(&configPath, "c", "config", "", "Configuration file (YAML)")
	cli.Flag(&socks5, "s", "socks5", "", "SOCKS5 proxy (e.g., 127.0.0.1:1080 or user:pass@host:port)")
	cli.Flag(&execCmd, "x", "exec", "", "Execute command(s) and exit (semicolon separated)")
	cli.Flag(&metricsListen, "m", "metrics", "", "Serve Prometheus metrics on this address")
	cli.Flag(&logFile, "l", "log", "", "Append log output to this file")
	cli.Flag(&autoReconnect, "r", "auto-reconnect", false, "Reconnect automatically when the connection drops")
	cli.Flag(&verbose, "v", "verbose", false, "Verbose output")

	cli.Parse()

	printBanner()

	if target == "" {
		error_("Missing target (-t)")
		cli.Usage(1)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		error_("%v", err)
		os.Exit(1)
	}
	if socks5 != "" {
		cfg.Transport.Socks5 = socks5
	}
	if autoReconnect {
		cfg.Session.AutoReconnect = true
	}
	if metricsListen != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Listen = metricsListen
	}
	if logFile != "" {
		cfg.Logging.File = logFile
	}
	if err := config.Validate(cfg); err != nil {
		error_("%v", err)
		os.Exit(1)
	}
	if err := setupLogging(cfg); err != nil {
		error_("%v", err)
		os.Exit(1)
	}
	defer debug.CloseLogFile()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = serveMetrics(cfg.Metrics.Listen)
	}

	mgr = smb.NewManager(cfg, m)
	mgr.LoginPrompt = promptLogin
	if username != "" {
		if password == "" && term.IsTerminal(int(os.Stdin.Fd())) {
			password = promptPassword(fmt.Sprintf("Password for %s: ", username))
		}
		mgr.SetDefaultLogin(auth.NewLogin(username, password))
	}
	if cfg.Transport.Socks5 != "" {
		info_("Using SOCKS5 proxy: %s", cfg.Transport.Socks5)
	}

	share, err := parseTarget(target)
	if err != nil {
		error_("%v", err)
		os.Exit(1)
	}
	targetHost = share.Host

	info_("Connecting to %s...", share)
	if err := useShare(ctx, share); err != nil {
		error_("Connection failed: %v", err)
		os.Exit(1)
	}
	defer mgr.CloseAll(context.Background())

	in := session.Info()
	success_("Connected! Dialect: %s, server %s (%s)", in.Negotiated.Dialect, in.NativeOS, in.NativeLanMan)
	if in.Guest {
		warn_("Logged in as guest")
	}

	if execCmd != "" {
		for _, cmd := range strings.Split(execCmd, ";") {
			cmd = strings.TrimSpace(cmd)
			if cmd == "" {
				continue
			}
			args := parseArgs(cmd)
			if len(args) > 0 {
				if !executeCommand(ctx, strings.ToLower(args[0]), args[1:]) {
					break
				}
			}
		}
		return
	}

	runShell(ctx)
}

func printBanner() {
	fmt.Printf(colorCyan+gooseBanner+colorReset, Version)
	fmt.Println()
}

func setupLogging(cfg *config.Config) error {
	if err := debug.SetLevel(cfg.Logging.Level); err != nil {
		return err
	}
	if verbose {
		debug.SetVerbose(true)
	}
	if cfg.Logging.File != "" {
		return debug.OpenLogFile(cfg.Logging.File)
	}
	return nil
}

// serveMetrics registers the client collectors and serves them over HTTP
func serveMetrics(addr string) *metrics.Metrics {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			debug.Errorf("metrics listener on %s: %v", addr, err)
		}
	}()
	info_("Serving metrics on http://%s/metrics", addr)
	return m
}

// parseTarget accepts a bare host for its IPC$ share or any share name
func parseTarget(target string) (smb.ShareName, error) {
	if strings.HasPrefix(target, `\\`) || strings.Contains(target, "://") {
		return smb.ParseShareName(target)
	}
	if strings.ContainsAny(target, `\/`) {
		return smb.ShareName{}, fmt.Errorf("invalid target %q", target)
	}
	return smb.IPCShare(target), nil
}

// useShare connects share (or reuses its registered session) and makes
// it the current session
func useShare(ctx context.Context, share smb.ShareName) error {
	name := strings.ToUpper(share.UNC())
	s, err := mgr.Session(name)
	if err != nil {
		s, err = mgr.Connect(ctx, name, share, nil)
		if err != nil {
			return err
		}
	}
	session = s
	targetHost = share.Host
	return nil
}

func runShell(ctx context.Context) {
	var items []readline.PrefixCompleterInterface
	for _, cmd := range commands.List() {
		items = append(items, readline.PcItem(cmd.Name))
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          buildPrompt(),
		HistoryFile:     filepath.Join(config.ConfigDir(), "history"),
		AutoComplete:    readline.NewPrefixCompleter(items...),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdin:           os.Stdin,
		Stdout:          os.Stdout,
		Stderr:          os.Stderr,
	})
	if err != nil {
		error_("failed to initialize readline: %v", err)
		return
	}
	defer rl.Close()

	for {
		rl.SetPrompt(buildPrompt())
		input, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			if err == io.EOF {
				break
			}
			break
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		args := parseArgs(input)
		if len(args) == 0 {
			continue
		}

		if !executeCommand(ctx, strings.ToLower(args[0]), args[1:]) {
			break
		}
	}
}

func buildPrompt() string {
	parts := []string{colorBold + "[cifsgooser]" + colorReset}
	if session != nil {
		parts = append(parts, colorCyan+session.Share().UNC()+colorReset)
	}
	return strings.Join(parts, " ") + "> "
}

// parseArgs splits on spaces, keeping quoted runs together
func parseArgs(line string) []string {
	var args []string
	var current strings.Builder
	var quote rune
	quoted := false

	flush := func() {
		if current.Len() > 0 || quoted {
			args = append(args, current.String())
			current.Reset()
			quoted = false
		}
	}

	for _, r := range line {
		switch {
		case quote != 0 && r == quote:
			quote = 0
		case quote == 0 && (r == '"' || r == '\''):
			quote = r
			quoted = true
		case quote == 0 && (r == ' ' || r == '\t'):
			flush()
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return args
}

// promptLogin asks for a new password after the server rejected one
func promptLogin(ctx context.Context, share smb.ShareName, current *auth.Login) (*auth.Login, bool) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil, false
	}
	account := current.Account()
	if account == "" {
		account = "(null)"
	}
	warn_("%s rejected the password for %s", share, account)
	pw, err := readPassword(fmt.Sprintf("Password for %s (empty to give up): ", account))
	if err != nil || pw == "" {
		return nil, false
	}
	return current.WithPassword(pw), true
}

// Output helpers
func info_(format string, args ...interface{}) {
	fmt.Printf(colorCyan+"[*]"+colorReset+" "+format+"\n", args...)
}

func success_(format string, args ...interface{}) {
	fmt.Printf(colorGreen+"[+]"+colorReset+" "+format+"\n", args...)
}

func error_(format string, args ...interface{}) {
	fmt.Printf(colorRed+"[!]"+colorReset+" "+format+"\n", args...)
}

func warn_(format string, args ...interface{}) {
	fmt.Printf(colorYellow+"[-]"+colorReset+" "+format+"\n", args...)
}

func debug_(format string, args ...interface{}) {
	if verbose {
		fmt.Printf(colorBlue+"[D]"+colorReset+" "+format+"\n", args...)
	}
}

func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(b), nil
}

func promptPassword(prompt string) string {
	pw, err := readPassword(prompt)
	if err != nil {
		error_("%v", err)
		os.Exit(1)
	}
	return pw
}
