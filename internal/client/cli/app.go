package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/dmitrijs2005/refkeeper/internal/client/api"
	"github.com/dmitrijs2005/refkeeper/internal/client/config"
)

// referralAPI is the part of *api.Client the commands use.
type referralAPI interface {
	Register(ctx context.Context, username, password, email, referralCode string) (*api.User, error)
	Login(ctx context.Context, username, password string) error
	Logout()
	Tokens() *api.TokenPair
	WhoAmI(ctx context.Context) (string, error)
	IssueCode(ctx context.Context) (*api.Code, error)
	GetCode(ctx context.Context) (*api.Code, error)
	DeleteCode(ctx context.Context) error
	CodeByEmail(ctx context.Context, email string) (*api.Code, error)
	Referrals(ctx context.Context, userID string) ([]api.Referral, error)
}

type App struct {
	config   *config.Config
	api      referralAPI
	userName string
	reader   *bufio.Reader
	out      io.Writer
}

func NewApp(c *config.Config) *App {
	return &App{
		config: c,
		api:    api.NewClient(c.ServerURL, c.RequestTimeout, nil),
		reader: bufio.NewReader(os.Stdin),
		out:    os.Stdout,
	}
}

// Run starts the REPL on the App's input and blocks until it ends.
func (a *App) Run(ctx context.Context) {
	printlnFn("Referral CLI, server", a.config.ServerURL, "(type 'help' for commands)")
	runREPL(ctx, a, a.getStatus, bufio.NewScanner(a.reader))
}

func (a *App) getStatus() string {
	if a.userName == "" {
		return ""
	}
	return fmt.Sprintf(" (%s)", a.userName)
}

func (a *App) isLoggedIn() bool {
	return a.api.Tokens() != nil
}

func (a *App) askPassword() (string, error) {
	pw, err := GetPassword(a.out)
	if err != nil {
		return "", err
	}
	s := string(pw)
	clear(pw)
	return s, nil
}

func (a *App) Register(ctx context.Context) error {
	username, err := GetSimpleText(a.reader, "Enter username", a.out)
	if err != nil {
		return err
	}
	password, err := a.askPassword()
	if err != nil {
		return err
	}
	email, err := GetOptionalText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}
	code, err := GetOptionalText(a.reader, "Enter referral code", a.out)
	if err != nil {
		return err
	}

	u, err := a.api.Register(ctx, username, password, email, code)
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}

	if u.Referrer != nil {
		printlnFn("Registered", u.Username, "with id", u.ID, "referred by", *u.Referrer)
	} else {
		printlnFn("Registered", u.Username, "with id", u.ID)
	}
	return nil
}

func (a *App) Login(ctx context.Context) error {
	username, err := GetSimpleText(a.reader, "Enter username", a.out)
	if err != nil {
		return err
	}
	password, err := a.askPassword()
	if err != nil {
		return err
	}

	if err := a.api.Login(ctx, username, password); err != nil {
		return fmt.Errorf("login: %w", err)
	}

	a.userName = username
	printlnFn("Logged in as", username)
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	a.api.Logout()
	a.userName = ""
	printlnFn("Logged out")
	return nil
}

// Code handles "code", "code new", "code rm" and "code email <address>".
func (a *App) Code(ctx context.Context, args []string) error {
	if len(args) == 0 {
		c, err := a.api.GetCode(ctx)
		if api.IsStatus(err, http.StatusNotFound) {
			printlnFn("You have no referral code, create one with 'code new'")
			return nil
		}
		if err != nil {
			return err
		}
		printCode(c)
		return nil
	}

	switch args[0] {
	case "new":
		c, err := a.api.IssueCode(ctx)
		if err != nil {
			return err
		}
		printCode(c)

	case "rm":
		err := a.api.DeleteCode(ctx)
		if api.IsStatus(err, http.StatusNotFound) {
			printlnFn("You have no referral code")
			return nil
		}
		if err != nil {
			return err
		}
		printlnFn("Referral code retired")

	case "email":
		if len(args) < 2 {
			printlnFn("Usage: code email <address>")
			return nil
		}
		c, err := a.api.CodeByEmail(ctx, args[1])
		if err != nil {
			return err
		}
		printCode(c)

	default:
		printlnFn("Usage: code [new|rm|email <address>]")
	}
	return nil
}

// Referrals lists users referred by the given id, or by the current user.
func (a *App) Referrals(ctx context.Context, args []string) error {
	var userID string
	if len(args) > 0 {
		userID = args[0]
	} else {
		id, err := a.api.WhoAmI(ctx)
		if err != nil {
			return err
		}
		userID = id
	}

	refs, err := a.api.Referrals(ctx, userID)
	if err != nil {
		return err
	}
	if len(refs) == 0 {
		printlnFn("No referrals yet")
		return nil
	}
	for _, r := range refs {
		printlnFn(" -", r.Username)
	}
	return nil
}

func printCode(c *api.Code) {
	left := time.Until(c.Expiration).Round(time.Minute)
	printlnFn(fmt.Sprintf("%s (expires %s, in %s)", c.Code, c.Expiration.Local().Format(time.DateTime), left))
}
