package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a stub.
type execIface interface {
	isUnlocked() bool
	Unlock(ctx context.Context) error
	Lock(ctx context.Context) error
	Token(ctx context.Context, args []string) error
	List(ctx context.Context) error
	AddItem(ctx context.Context) error
	AddEntry(ctx context.Context) error
	Toggle(ctx context.Context) error
	Sync(ctx context.Context) error
	Share(ctx context.Context) error
	Shares(ctx context.Context) error
	EditShared(ctx context.Context) error
	Rotate(ctx context.Context) error
}

// runREPL reads a line, parses the first token as the command, and
// dispatches to methods on 'a'. The loop exits on scanner EOF or when the
// user types "exit" or "quit". Errors returned by command handlers are
// printed and the loop continues.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("pv %s> ", statusFn()))
		if !scanner.Scan() {
			return
		}
		line := scanner.Text()
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd := parts[0]
		args := parts[1:]

		var err error
		switch cmd {
		case "help":
			if a.isUnlocked() {
				printlnFn("Available commands: (l)ist, add, addentry, toggle, sync, share, shares, editshared, rotate, lock, exit")
			} else {
				printlnFn("Available commands: token, unlock, exit")
			}

		case "token":
			err = a.Token(ctx, args)

		case "unlock":
			err = a.Unlock(ctx)

		case "lock":
			err = a.Lock(ctx)

		case "l", "list":
			err = a.List(ctx)

		case "add":
			err = a.AddItem(ctx)

		case "addentry":
			err = a.AddEntry(ctx)

		case "toggle":
			err = a.Toggle(ctx)

		case "sync":
			err = a.Sync(ctx)

		case "share":
			err = a.Share(ctx)

		case "shares":
			err = a.Shares(ctx)

		case "editshared":
			err = a.EditShared(ctx)

		case "rotate":
			err = a.Rotate(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}

		if err != nil {
			printlnFn("Error:", err.Error())
		}
	}
}
