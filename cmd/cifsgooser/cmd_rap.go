package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ineffectivecoder/cifsgooser/pkg/rap"
)

// concurrent IPC$ sessions opened by servers -info
const queryLimit = 8

func registerRAPCommands() {
	commands.Register(&Command{
		Name:        "shares",
		Aliases:     []string{"netshares"},
		Description: "List shares on the target",
		Usage:       "shares [host]",
		Handler:     cmdShares,
	})

	commands.Register(&Command{
		Name:        "servers",
		Aliases:     []string{"browse"},
		Description: "List servers in a domain (-info asks each one about itself)",
		Usage:       "servers [domain] [-info]",
		Handler:     cmdServers,
	})

	commands.Register(&Command{
		Name:        "domains",
		Description: "List the domains the target knows about",
		Handler:     cmdDomains,
	})

	commands.Register(&Command{
		Name:        "server",
		Aliases:     []string{"srvinfo"},
		Description: "Show server name, version and type",
		Usage:       "server [host]",
		Handler:     cmdServer,
	})

	commands.Register(&Command{
		Name:        "wksta",
		Description: "Show workstation name, user and domain",
		Usage:       "wksta [host]",
		Handler:     cmdWksta,
	})

	commands.Register(&Command{
		Name:        "user",
		Aliases:     []string{"userinfo"},
		Description: "Show account details of a user",
		Usage:       "user <name>",
		Handler:     cmdUser,
	})

	commands.Register(&Command{
		Name:        "passwd",
		Description: "Change a user's password",
		Usage:       "passwd [user] [old] [new]",
		Handler:     cmdPasswd,
	})
}

// rapClient returns a RAP client for host, the current target by default
func rapClient(ctx context.Context, host string) (*rap.Client, error) {
	if host == "" {
		host = targetHost
	}
	if host == "" {
		return nil, fmt.Errorf("not connected")
	}
	s, err := ipcSession(ctx, host)
	if err != nil {
		return nil, err
	}
	return rap.NewClient(s, host), nil
}

func optionalArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}

func cmdShares(ctx context.Context, args []string) error {
	c, err := rapClient(ctx, optionalArg(args))
	if err != nil {
		return err
	}
	shares, err := c.NetShareEnum(ctx, true)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Printf("  %-15s%-7s%s\n", "SHARE", "TYPE", "REMARK")
	fmt.Println("  " + strings.Repeat("-", 60))
	for _, s := range shares {
		fmt.Printf("  %s\n", s)
	}
	fmt.Println()
	info_("%d shares", len(shares))
	return nil
}

func cmdServers(ctx context.Context, args []string) error {
	var domain string
	query := false
	for _, a := range args {
		if strings.EqualFold(a, "-info") {
			query = true
		} else {
			domain = a
		}
	}

	c, err := rapClient(ctx, "")
	if err != nil {
		return err
	}
	if domain == "" {
		wk, err := c.NetWkstaGetInfo(ctx)
		if err != nil {
			return fmt.Errorf("cannot find the target's domain: %w", err)
		}
		domain = wk.Domain
	}
	debug_("Enumerating servers of %s", domain)

	servers, err := c.NetServerEnum2(ctx, domain, rap.SVTypeAll)
	if err != nil {
		return err
	}

	if query {
		queryServers(ctx, servers)
	}

	fmt.Println()
	fmt.Printf("  %sServers in %s:%s\n", colorBold, domain, colorReset)
	fmt.Printf("  %-16s %-6s %-40s %s\n", "NAME", "VER", "TYPE", "COMMENT")
	fmt.Println("  " + strings.Repeat("-", 76))
	for _, s := range servers {
		fmt.Printf("  %-16s %-6s %-40s %s\n", s.Name, s.Version(), s.Type, s.Comment)
	}
	fmt.Println()
	return nil
}

// queryServers replaces each browse list entry with what the server
// reports about itself, asking all of them concurrently
func queryServers(ctx context.Context, servers []rap.ServerInfo) {
	var mu sync.Mutex
	failed := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(queryLimit)
	for i := range servers {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(gctx, 15*time.Second)
			defer cancel()

			c, err := rapClient(pctx, servers[i].Name)
			if err == nil {
				var info *rap.ServerInfo
				if info, err = c.NetServerGetInfo(pctx); err == nil {
					servers[i] = *info
					return nil
				}
			}
			debug_("server info %s: %v", servers[i].Name, err)
			mu.Lock()
			failed++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	if failed > 0 {
		warn_("%d of %d servers did not answer", failed, len(servers))
	}
}

func cmdDomains(ctx context.Context, args []string) error {
	c, err := rapClient(ctx, "")
	if err != nil {
		return err
	}
	names, err := c.NetServerEnum2Names(ctx, "", rap.SVTypeAll)
	if err != nil {
		return err
	}
	fmt.Println()
	for _, n := range names {
		fmt.Printf("  %s\n", n)
	}
	fmt.Println()
	return nil
}

func cmdServer(ctx context.Context, args []string) error {
	c, err := rapClient(ctx, optionalArg(args))
	if err != nil {
		return err
	}
	s, err := c.NetServerGetInfo(ctx)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Printf("  %sName:%s     %s\n", colorBold, colorReset, s.Name)
	fmt.Printf("  Version:  %s\n", s.Version())
	fmt.Printf("  Type:     %s\n", s.Type)
	fmt.Printf("  Comment:  %s\n", s.Comment)
	fmt.Println()
	return nil
}

func cmdWksta(ctx context.Context, args []string) error {
	c, err := rapClient(ctx, optionalArg(args))
	if err != nil {
		return err
	}
	w, err := c.NetWkstaGetInfo(ctx)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Printf("  %sComputer:%s      %s\n", colorBold, colorReset, w.ComputerName)
	fmt.Printf("  User:          %s\n", w.UserName)
	fmt.Printf("  Domain:        %s\n", w.Domain)
	fmt.Printf("  Version:       %d.%d\n", w.Major, w.Minor)
	fmt.Printf("  Logon domain:  %s\n", w.LogonDomain)
	if w.OtherDomains != "" {
		fmt.Printf("  Other domains: %s\n", w.OtherDomains)
	}
	fmt.Println()
	return nil
}

func cmdUser(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: user <name>")
	}
	c, err := rapClient(ctx, "")
	if err != nil {
		return err
	}
	u, err := c.NetUserGetInfo(ctx, args[0])
	if err != nil {
		return err
	}

	formatTime := func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.Local().Format(time.RFC1123)
	}

	fmt.Println()
	fmt.Printf("  %sUser:%s           %s\n", colorBold, colorReset, u.Name)
	fmt.Printf("  Full name:      %s\n", u.FullName)
	fmt.Printf("  Comment:        %s\n", u.Comment)
	if u.UserComment != "" {
		fmt.Printf("  User comment:   %s\n", u.UserComment)
	}
	fmt.Printf("  Privilege:      %s\n", u.Privilege)
	fmt.Printf("  Operator:       %s\n", u.OperatorFlags)
	fmt.Printf("  Password age:   %s\n", u.PasswordAge)
	fmt.Printf("  Home dir:       %s\n", u.HomeDir)
	fmt.Printf("  Last logon:     %s\n", formatTime(u.LastLogon))
	fmt.Printf("  Last logoff:    %s\n", formatTime(u.LastLogoff))
	fmt.Printf("  Bad passwords:  %d\n", u.BadPasswordCount)
	fmt.Printf("  Logons:         %d\n", u.Logons)
	fmt.Printf("  Logon server:   %s\n", u.LogonServer)
	if u.Workstations != "" {
		fmt.Printf("  Workstations:   %s\n", u.Workstations)
	}
	fmt.Println()
	return nil
}

func cmdPasswd(ctx context.Context, args []string) error {
	var user, oldPassword, newPassword string
	switch len(args) {
	case 0:
		if session == nil {
			return fmt.Errorf("not connected")
		}
		user = session.Info().Account
	case 1:
		user = args[0]
	case 3:
		user, oldPassword, newPassword = args[0], args[1], args[2]
	default:
		return fmt.Errorf("usage: passwd [user] [old] [new]")
	}
	if user == "" {
		return fmt.Errorf("no user to change the password of")
	}

	if newPassword == "" {
		var err error
		if oldPassword, err = readPassword(fmt.Sprintf("Old password for %s: ", user)); err != nil {
			return err
		}
		if newPassword, err = readPassword("New password: "); err != nil {
			return err
		}
		again, err := readPassword("Retype new password: ")
		if err != nil {
			return err
		}
		if again != newPassword {
			return fmt.Errorf("passwords do not match")
		}
	}

	c, err := rapClient(ctx, "")
	if err != nil {
		return err
	}
	if err := c.SamOEMChangePassword(ctx, user, oldPassword, newPassword); err != nil {
		if rap.IsStatus(err, rap.StatusPasswordTooShort) {
			return fmt.Errorf("%w (the new password does not meet the password policy)", err)
		}
		return err
	}
	success_("Password changed for %s", user)
	return nil
}
