package cli

import (
	"context"
	"os"

	"github.com/dmitrijs2005/timegrid/internal/common"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// Login prompts the user for credentials and authenticates online. The
// resulting session is cached encrypted, so later starts work offline.
// The password byte slice is securely wiped before returning.
func (a *App) Login(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", os.Stdout)
	if err != nil {
		return err
	}

	password, err := getPassword(os.Stdout)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	s, err := a.auth.Login(ctx, email, string(password))
	if err != nil {
		return err
	}

	a.userName = s.User.Email
	a.engine.SetOnline(ctx, true)
	printlnFn("Success!")
	return nil
}

// Logout drops the cached session and the in-memory identity. Queued
// operations stay on disk and resume after the next login.
func (a *App) Logout(ctx context.Context) error {
	if err := a.auth.Logout(ctx); err != nil {
		return err
	}
	a.userName = ""
	printlnFn("Logged out")
	return nil
}
