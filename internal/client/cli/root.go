package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the loop needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	List(ctx context.Context, args []string) error
	Add(ctx context.Context, args []string) error
	Update(ctx context.Context, args []string) error
	Delete(ctx context.Context, args []string) error
	Sync(ctx context.Context) error
	Retry(ctx context.Context, args []string) error
	Status(ctx context.Context) error
	Queue(ctx context.Context) error
	FeedAdd(ctx context.Context) error
	FeedRemove(ctx context.Context, args []string) error
	Events(ctx context.Context) error
}

func (a *App) getStatus() string {
	s := ""
	if a.userName != "" {
		s = a.userName + " "
	}
	s = s + string(a.status.Latest().Status)
	return fmt.Sprintf("(%s)", s)
}

func (a *App) Root(ctx context.Context) {
	printlnFn("Welcome to TimeGrid CLI (type 'help' for commands)")
	scanner := bufio.NewScanner(os.Stdin)
	runLoop(ctx, a, a.getStatus, scanner)
}

// runLoop reads a line, parses the first token as the command and dispatches
// to methods on 'a'. Unknown commands are reported back to the user. The loop
// exits on scanner EOF or when the user types "exit" or "quit".
//
// Command errors are printed here; the loop itself never stops on them.
func runLoop(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("tg %s > ", statusFn()))
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
			if a.isLoggedIn() {
				printlnFn("Available commands: (l)ist, add, update, delete, sync, retry, status, queue, feedadd, feedrm, events, logout, exit")
			} else {
				printlnFn("Available commands: login, status, exit")
			}

		case "login":
			err = a.Login(ctx)

		case "logout":
			err = a.Logout(ctx)

		case "l", "list":
			err = a.List(ctx, args)

		case "add":
			err = a.Add(ctx, args)

		case "update":
			err = a.Update(ctx, args)

		case "delete":
			err = a.Delete(ctx, args)

		case "sync":
			err = a.Sync(ctx)

		case "retry":
			err = a.Retry(ctx, args)

		case "status":
			err = a.Status(ctx)

		case "queue":
			err = a.Queue(ctx)

		case "feedadd":
			err = a.FeedAdd(ctx)

		case "feedrm":
			err = a.FeedRemove(ctx, args)

		case "events":
			err = a.Events(ctx)

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
