package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isRegistered() bool
	Register(ctx context.Context) error
	Add(ctx context.Context, text string) error
	List(ctx context.Context) error
	Refresh(ctx context.Context) error
	More(ctx context.Context) error
	Timeline(ctx context.Context, more bool) error
	Show(ctx context.Context, id string) error
	Favorite(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	Restore(ctx context.Context, id string) error
	Archived(ctx context.Context) error
	Retry(ctx context.Context, id string) error
	Enrich(ctx context.Context, id string) error
	Sync(ctx context.Context) error
	Status(ctx context.Context) error
	Purge(ctx context.Context) error
	Logout(ctx context.Context) error
}

const (
	helpUnregistered = "Available commands: register, add, (l)ist, show, fav, delete, restore, archived, status, exit"
	helpRegistered   = "Available commands: add, (l)ist, refresh, more, timeline [more], show, fav, delete, restore, archived, retry, enrich, sync, status, purge, logout, exit"
)

// idCommands take exactly one moment id.
var idCommands = map[string]func(execIface, context.Context, string) error{
	"show":    execIface.Show,
	"fav":     execIface.Favorite,
	"delete":  execIface.Delete,
	"rm":      execIface.Delete,
	"restore": execIface.Restore,
	"retry":   execIface.Retry,
	"enrich":  execIface.Enrich,
}

// runREPL reads commands from reader and dispatches them to a until EOF,
// "exit" or "quit". promptFn returns the prompt to print before each line;
// an empty prompt prints nothing. Handlers may read follow-up input from
// the same reader.
//
// Errors returned by command handlers are ignored here; handlers report
// their own errors.
func runREPL(ctx context.Context, a execIface, promptFn func() string, reader *bufio.Reader) {
	for {
		if p := promptFn(); p != "" {
			printlnFn(p)
		}
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return
		}
		last := err != nil
		if ctx.Err() != nil {
			return
		}

		parts := strings.Fields(line)
		if len(parts) == 0 {
			if last {
				return
			}
			continue
		}
		cmd, args := parts[0], parts[1:]
		if !dispatch(ctx, a, cmd, args) || last {
			return
		}
	}
}

// dispatch runs one command and reports whether the loop should go on.
func dispatch(ctx context.Context, a execIface, cmd string, args []string) bool {
	if fn, ok := idCommands[cmd]; ok {
		if len(args) != 1 {
			printlnFn(fmt.Sprintf("Usage: %s <id>", cmd))
			return true
		}
		_ = fn(a, ctx, args[0])
		return true
	}

	switch cmd {
	case "help":
		if a.isRegistered() {
			printlnFn(helpRegistered)
		} else {
			printlnFn(helpUnregistered)
		}

	case "register":
		_ = a.Register(ctx)

	case "add":
		_ = a.Add(ctx, strings.Join(args, " "))

	case "l", "list":
		_ = a.List(ctx)

	case "refresh":
		_ = a.Refresh(ctx)

	case "more":
		_ = a.More(ctx)

	case "tl", "timeline":
		_ = a.Timeline(ctx, len(args) > 0 && args[0] == "more")

	case "archived":
		_ = a.Archived(ctx)

	case "sync":
		_ = a.Sync(ctx)

	case "status":
		_ = a.Status(ctx)

	case "purge":
		_ = a.Purge(ctx)

	case "logout":
		_ = a.Logout(ctx)

	case "exit", "quit":
		printlnFn("Bye!")
		return false

	default:
		printlnFn("Unknown command:", cmd)
	}
	return true
}
