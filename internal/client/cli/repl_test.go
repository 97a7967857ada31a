package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeExec struct {
	unlocked bool
	calls    []string
	err      error
}

func (f *fakeExec) record(name string) error {
	f.calls = append(f.calls, name)
	return f.err
}

func (f *fakeExec) isUnlocked() bool { return f.unlocked }

func (f *fakeExec) Unlock(ctx context.Context) error { return f.record("unlock") }
func (f *fakeExec) Lock(ctx context.Context) error   { return f.record("lock") }
func (f *fakeExec) Token(ctx context.Context, args []string) error {
	return f.record("token:" + strings.Join(args, ","))
}
func (f *fakeExec) List(ctx context.Context) error       { return f.record("list") }
func (f *fakeExec) AddItem(ctx context.Context) error    { return f.record("add") }
func (f *fakeExec) AddEntry(ctx context.Context) error   { return f.record("addentry") }
func (f *fakeExec) Toggle(ctx context.Context) error     { return f.record("toggle") }
func (f *fakeExec) Sync(ctx context.Context) error       { return f.record("sync") }
func (f *fakeExec) Share(ctx context.Context) error      { return f.record("share") }
func (f *fakeExec) Shares(ctx context.Context) error     { return f.record("shares") }
func (f *fakeExec) EditShared(ctx context.Context) error { return f.record("editshared") }
func (f *fakeExec) Rotate(ctx context.Context) error     { return f.record("rotate") }

func runScript(t *testing.T, f *fakeExec, script string) []string {
	t.Helper()

	var out []string
	orig := printlnFn
	printlnFn = func(a ...any) (int, error) {
		out = append(out, fmt.Sprintln(a...))
		return 0, nil
	}
	defer func() { printlnFn = orig }()

	scanner := bufio.NewScanner(strings.NewReader(script))
	runREPL(context.Background(), f, func() string { return "(test)" }, scanner)
	return out
}

func TestREPLDispatch(t *testing.T) {
	f := &fakeExec{unlocked: true}
	runScript(t, f, "token abc\nunlock\nlist\nl\nadd\naddentry\ntoggle\nsync\nshare\nshares\neditshared\nrotate\nlock\nexit\n")

	assert.Equal(t, []string{
		"token:abc", "unlock", "list", "list", "add", "addentry", "toggle",
		"sync", "share", "shares", "editshared", "rotate", "lock",
	}, f.calls)
}

func TestREPLHelpVariesWithLockState(t *testing.T) {
	locked := runScript(t, &fakeExec{unlocked: false}, "help\nexit\n")
	assert.Contains(t, strings.Join(locked, ""), "token, unlock")

	unlocked := runScript(t, &fakeExec{unlocked: true}, "help\nexit\n")
	assert.Contains(t, strings.Join(unlocked, ""), "sync, share")
}

func TestREPLPrintsErrorsAndContinues(t *testing.T) {
	f := &fakeExec{unlocked: true, err: errors.New("boom")}
	out := runScript(t, f, "sync\nlist\nexit\n")

	assert.Equal(t, []string{"sync", "list"}, f.calls)
	assert.Contains(t, strings.Join(out, ""), "Error: boom")
}

func TestREPLUnknownAndEmptyInput(t *testing.T) {
	f := &fakeExec{}
	out := runScript(t, f, "\nnosuchcmd\nquit\n")

	assert.Empty(t, f.calls)
	assert.Contains(t, strings.Join(out, ""), "Unknown command: nosuchcmd")
}
