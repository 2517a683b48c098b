// Package auth provides LAN Manager and NT challenge/response authentication
// for CIFS sessions.
package auth

import "strings"

// Login is an account name with an optional password. A missing password
// is distinct from an empty one and selects a null session. A Login is
// never modified after construction.
type Login struct {
	account  string
	password *string
}

// NewLogin creates a login with a password.
func NewLogin(account, password string) *Login {
	return &Login{account: account, password: &password}
}

// NewAnonymousLogin creates a login without a password.
func NewAnonymousLogin(account string) *Login {
	return &Login{account: account}
}

// Account returns the account name
func (l *Login) Account() string {
	return l.account
}

// Password returns the password and whether one is set
func (l *Login) Password() (string, bool) {
	if l.password == nil {
		return "", false
	}
	return *l.password, true
}

// HasPassword reports whether a password is set
func (l *Login) HasPassword() bool {
	return l.password != nil
}

// WithPassword returns a copy of l using password.
func (l *Login) WithPassword(password string) *Login {
	return NewLogin(l.account, password)
}

// Upper returns a copy of l with the password uppercased.
func (l *Login) Upper() *Login {
	if l.password == nil {
		return l.Clone()
	}
	return l.WithPassword(strings.ToUpper(*l.password))
}

// Clone returns an independent copy of l.
func (l *Login) Clone() *Login {
	c := &Login{account: l.account}
	if l.password != nil {
		p := *l.password
		c.password = &p
	}
	return c
}

// Equal compares account and password, treating a missing password as
// different from an empty one.
func (l *Login) Equal(o *Login) bool {
	if l == nil || o == nil {
		return l == o
	}
	if l.account != o.account {
		return false
	}
	if l.password == nil || o.password == nil {
		return l.password == o.password
	}
	return *l.password == *o.password
}

// String returns the account name with the password masked.
func (l *Login) String() string {
	if l.password == nil {
		return l.account + " (no password)"
	}
	return l.account + " (password set)"
}
