package cli

import (
	"bufio"
	"context"
	"fmt"
	"log"
)

func (a *App) getStatus() string {
	s := ""
	if a.email != "" {
		s = a.email
	}
	if a.isUnlocked() {
		s += " unlocked"
	} else {
		s += " locked"
	}
	return fmt.Sprintf("(%s)", s)
}

func (a *App) Root(ctx context.Context) {
	log.Println("Welcome to planvault CLI (type 'help' for commands)")
	// the scanner shares the command reader so prompts and commands do not
	// race for buffered stdin
	scanner := bufio.NewScanner(a.reader)
	runREPL(ctx, a, a.getStatus, scanner)
}
