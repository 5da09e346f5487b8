// Package admin implements the authkeeper-admin command: creating
// identities directly in the configured store.
package admin

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/flagx"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
)

var ErrPasswordMismatch = errors.New("passwords do not match")

// Registrar creates identities. *services.AccountService satisfies it.
type Registrar interface {
	Register(ctx context.Context, in services.NewIdentity) (*models.Identity, error)
}

type Options struct {
	Username string
	Email    string
	Admin    bool
}

// ParseOptions reads -username, -email and -admin from args, ignoring
// flags that belong to the server configuration.
func ParseOptions(args []string) (Options, error) {
	var o Options
	fs := flag.NewFlagSet("authkeeper-admin", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&o.Username, "username", "", "login name")
	fs.StringVar(&o.Email, "email", "", "email address")
	fs.BoolVar(&o.Admin, "admin", false, "grant ROLE_ADMIN")

	if err := fs.Parse(flagx.FilterArgs(args, flagx.Names(fs))); err != nil {
		return o, fmt.Errorf("parse flags: %w", err)
	}
	return o, nil
}

// CreateIdentity prompts for whatever Options leaves out, asks for the
// password twice and registers the identity.
func CreateIdentity(ctx context.Context, r Registrar, o Options, in *bufio.Reader, out io.Writer) (*models.Identity, error) {
	var err error
	if o.Email == "" {
		if o.Email, err = GetSimpleText(in, "Email", out); err != nil {
			return nil, err
		}
	}
	if o.Username == "" {
		if o.Username, err = GetSimpleText(in, "Username (optional)", out); err != nil {
			return nil, err
		}
	}

	pw, err := GetPassword("Password", out)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(pw)

	confirm, err := GetPassword("Repeat password", out)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(confirm)

	if !bytes.Equal(pw, confirm) {
		return nil, ErrPasswordMismatch
	}

	roles := []models.Role{models.RoleUser}
	if o.Admin {
		roles = append(roles, models.RoleAdmin)
	}

	return r.Register(ctx, services.NewIdentity{
		Username: o.Username,
		Email:    o.Email,
		Password: string(pw),
		Roles:    roles,
	})
}
