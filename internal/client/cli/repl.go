package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output.
var printlnFn = fmt.Println

// execIface is the command surface the REPL dispatches to.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Code(ctx context.Context, args []string) error
	Referrals(ctx context.Context, args []string) error
	Logout(ctx context.Context) error
}

// runREPL reads commands line by line and dispatches them to a until EOF
// or "exit". Command errors are reported and the loop goes on.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("ref%s> ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var err error
		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Available commands: code [new|rm|email <address>], referrals [user id], logout, exit")
			} else {
				printlnFn("Available commands: register, login, exit")
			}

		case "register":
			err = a.Register(ctx)

		case "login":
			err = a.Login(ctx)

		case "code":
			err = requireLogin(a, func() error { return a.Code(ctx, args) })

		case "referrals":
			err = requireLogin(a, func() error { return a.Referrals(ctx, args) })

		case "logout":
			err = a.Logout(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}

		if err != nil {
			printlnFn("Error:", err)
		}
	}
}

func requireLogin(a execIface, fn func() error) error {
	if !a.isLoggedIn() {
		printlnFn("Please login first")
		return nil
	}
	return fn()
}
