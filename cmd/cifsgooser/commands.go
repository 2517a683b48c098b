package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ineffectivecoder/cifsgooser/pkg/smb"
)

// Command represents a shell command
type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Handler     func(ctx context.Context, args []string) error
}

// CommandRegistry holds all available commands
type CommandRegistry struct {
	commands map[string]*Command
}

// Global command registry
var commands = NewCommandRegistry()

// NewCommandRegistry creates a new command registry
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{
		commands: make(map[string]*Command),
	}
}

// Register adds a command under its name and aliases
func (r *CommandRegistry) Register(cmd *Command) {
	r.commands[cmd.Name] = cmd
	for _, alias := range cmd.Aliases {
		r.commands[alias] = cmd
	}
}

// Get retrieves a command by name or alias
func (r *CommandRegistry) Get(name string) *Command {
	return r.commands[name]
}

// List returns all unique commands sorted by name
func (r *CommandRegistry) List() []*Command {
	seen := make(map[string]bool)
	var list []*Command
	for _, cmd := range r.commands {
		if !seen[cmd.Name] {
			seen[cmd.Name] = true
			list = append(list, cmd)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Name < list[j].Name
	})
	return list
}

// executeCommand runs a command by name and reports whether the shell
// should keep going
func executeCommand(ctx context.Context, name string, args []string) bool {
	cmd := commands.Get(name)
	if cmd == nil {
		error_("Unknown command: %s (type 'help' for commands)", name)
		return true
	}

	if err := cmd.Handler(ctx, args); err != nil {
		error_("%v", err)
	}
	return cmd.Name != "exit"
}

func init() {
	registerCoreCommands()
	registerSessionCommands()
	registerRAPCommands()
}

func registerCoreCommands() {
	commands.Register(&Command{
		Name:        "help",
		Aliases:     []string{"?", "h"},
		Description: "Show available commands",
		Usage:       "help [command]",
		Handler:     cmdHelp,
	})

	commands.Register(&Command{
		Name:        "exit",
		Aliases:     []string{"quit", "q"},
		Description: "Exit the shell",
		Handler:     cmdExit,
	})

	commands.Register(&Command{
		Name:        "whoami",
		Description: "Show the account of the current session",
		Handler:     cmdWhoami,
	})

	commands.Register(&Command{
		Name:        "info",
		Description: "Show negotiated connection info",
		Handler:     cmdInfo,
	})

	commands.Register(&Command{
		Name:        "clear",
		Aliases:     []string{"cls"},
		Description: "Clear the screen",
		Handler:     cmdClear,
	})
}

func registerSessionCommands() {
	commands.Register(&Command{
		Name:        "echo",
		Aliases:     []string{"ping"},
		Description: "Send an SMB echo and print the reply",
		Usage:       "echo [text]",
		Handler:     cmdEcho,
	})

	commands.Register(&Command{
		Name:        "reconnect",
		Description: "Drop and re-establish the current session",
		Handler:     cmdReconnect,
	})

	commands.Register(&Command{
		Name:        "sessions",
		Description: "List the open sessions",
		Handler:     cmdSessions,
	})

	commands.Register(&Command{
		Name:        "use",
		Aliases:     []string{"connect"},
		Description: "Connect to a share and make it current",
		Usage:       `use \\host\share | cifs://host/share | host`,
		Handler:     cmdUse,
	})

	commands.Register(&Command{
		Name:        "disconnect",
		Description: "Close a session (the current one by default)",
		Usage:       "disconnect [session]",
		Handler:     cmdDisconnect,
	})
}

func cmdHelp(ctx context.Context, args []string) error {
	if len(args) > 0 {
		cmd := commands.Get(args[0])
		if cmd == nil {
			return fmt.Errorf("unknown command: %s", args[0])
		}
		fmt.Printf("\n%s%s%s - %s\n", colorBold, cmd.Name, colorReset, cmd.Description)
		if cmd.Usage != "" {
			fmt.Printf("Usage: %s\n", cmd.Usage)
		}
		if len(cmd.Aliases) > 0 {
			fmt.Printf("Aliases: %s\n", strings.Join(cmd.Aliases, ", "))
		}
		fmt.Println()
		return nil
	}

	fmt.Println()
	fmt.Printf("%s=== cifsgooser Commands ===%s\n\n", colorBold, colorReset)

	categories := map[string][]string{
		"Core":     {"help", "exit", "whoami", "info", "clear"},
		"Sessions": {"echo", "reconnect", "sessions", "use", "disconnect"},
		"Recon":    {"shares", "servers", "domains", "server", "wksta", "user"},
		"Accounts": {"passwd"},
	}
	order := []string{"Core", "Sessions", "Recon", "Accounts"}

	for _, cat := range order {
		fmt.Printf("%s%s:%s\n", colorCyan, cat, colorReset)
		for _, name := range categories[cat] {
			if cmd := commands.Get(name); cmd != nil {
				fmt.Printf("  %-12s %s\n", cmd.Name, cmd.Description)
			}
		}
		fmt.Println()
	}
	return nil
}

func cmdExit(ctx context.Context, args []string) error {
	info_("Goodbye!")
	return nil
}

func cmdWhoami(ctx context.Context, args []string) error {
	if session == nil {
		return fmt.Errorf("not connected")
	}
	in := session.Info()

	fmt.Println()
	account := in.Account
	if account == "" {
		account = "(null session)"
	}
	fmt.Printf("  %sLogged in as:%s %s\n", colorBold, colorReset, account)
	if in.Guest {
		fmt.Printf("  %sGuest:%s        yes\n", colorBold, colorReset)
	}
	fmt.Printf("  UID:          %d\n", in.UID)
	fmt.Printf("  TID:          %d\n", in.TID)
	fmt.Printf("  PID:          %d\n", in.PID)
	fmt.Println()
	return nil
}

func cmdInfo(ctx context.Context, args []string) error {
	if session == nil {
		return fmt.Errorf("not connected")
	}
	in := session.Info()
	neg := in.Negotiated

	fmt.Printf("\n%sConnection Info:%s\n", colorBold, colorReset)
	fmt.Printf("  Session:      %s\n", in.Name)
	fmt.Printf("  Share:        %s (%s)\n", in.Share, in.Share.Kind)
	fmt.Printf("  Server:       %s", in.Server)
	if in.Server.Name != "" {
		fmt.Printf(" %s", in.Server.Name)
		if in.Server.Workgroup != "" {
			fmt.Printf(" in %s", in.Server.Workgroup)
		}
	}
	fmt.Println()
	fmt.Printf("  Native OS:    %s\n", in.NativeOS)
	fmt.Printf("  Native LM:    %s\n", in.NativeLanMan)
	fmt.Printf("  Connected:    %v", in.Connected)
	if in.Lost {
		fmt.Print(" (lost)")
	}
	fmt.Println()
	if !in.ConnectTime.IsZero() {
		fmt.Printf("  Since:        %s\n", in.ConnectTime.Format(time.RFC1123))
	}

	fmt.Printf("\n%sNegotiated:%s\n", colorBold, colorReset)
	fmt.Printf("  Dialect:      %s\n", neg.Dialect)
	security := "share"
	if neg.UserLevel() {
		security = "user"
	}
	if neg.EncryptPasswords() {
		security += ", challenge/response"
	} else {
		security += ", plaintext"
	}
	fmt.Printf("  Security:     %s\n", security)
	fmt.Printf("  Max Buffer:   %d bytes\n", neg.MaxBuffer)
	fmt.Printf("  Max Mpx:      %d\n", neg.MaxMpx)
	fmt.Printf("  Capabilities: 0x%08X\n", neg.Capabilities)
	if !neg.ServerTime.IsZero() {
		fmt.Printf("  Server Time:  %s (tz %+d min)\n", neg.ServerTime.Format(time.RFC1123), -int(neg.TimeZone))
	}
	fmt.Println()
	return nil
}

func cmdClear(ctx context.Context, args []string) error {
	fmt.Print("\033[H\033[2J")
	return nil
}

func cmdEcho(ctx context.Context, args []string) error {
	if session == nil {
		return fmt.Errorf("not connected")
	}
	text := strings.Join(args, " ")
	if text == "" {
		text = "HONK"
	}
	start := time.Now()
	reply, err := session.Echo(ctx, text)
	if err != nil {
		return fmt.Errorf("echo failed: %w", err)
	}
	success_("%q in %s", reply, time.Since(start).Round(time.Microsecond))
	return nil
}

func cmdReconnect(ctx context.Context, args []string) error {
	if session == nil {
		return fmt.Errorf("not connected")
	}
	info_("Reconnecting %s...", session.Name())
	if err := session.Redial(ctx); err != nil {
		return fmt.Errorf("reconnect failed: %w", err)
	}
	success_("Reconnected")
	return nil
}

func cmdSessions(ctx context.Context, args []string) error {
	names := mgr.Registry().Names()
	if len(names) == 0 {
		fmt.Println("  No open sessions")
		return nil
	}

	fmt.Println()
	fmt.Printf("  %-32s %-20s %-10s %s\n", "SESSION", "ACCOUNT", "STATE", "SERVER")
	fmt.Println("  " + strings.Repeat("-", 76))
	for _, name := range names {
		s, err := mgr.Session(name)
		if err != nil {
			continue
		}
		in := s.Info()
		state := "up"
		switch {
		case in.Lost:
			state = "lost"
		case !in.Connected:
			state = "down"
		}
		marker := " "
		if s == session {
			marker = "*"
		}
		fmt.Printf("%s %-32s %-20s %-10s %s\n", marker, name, in.Account, state, in.NativeOS)
	}
	fmt.Println()
	return nil
}

func cmdUse(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: use <share>")
	}
	share, err := parseTarget(args[0])
	if err != nil {
		return err
	}
	info_("Connecting to %s...", share)
	if err := useShare(ctx, share); err != nil {
		return err
	}
	success_("Using %s", session.Share())
	return nil
}

func cmdDisconnect(ctx context.Context, args []string) error {
	s := session
	if len(args) > 0 {
		var err error
		if s, err = mgr.Session(args[0]); err != nil {
			return err
		}
	}
	if s == nil {
		return fmt.Errorf("not connected")
	}
	if err := s.Disconnect(ctx); err != nil {
		warn_("disconnect: %v", err)
	}
	success_("Closed %s", s.Name())
	if s == session {
		session = nil
	}
	return nil
}

// ipcSession returns the IPC$ session to host, opening it when needed
func ipcSession(ctx context.Context, host string) (*smb.Session, error) {
	if session != nil && session.Share().Kind == smb.ShareIPC && strings.EqualFold(session.Share().Host, host) {
		return session, nil
	}
	debug_("Opening IPC$ session to %s", host)
	return mgr.ConnectIPC(ctx, host)
}
