package command

import (
	"fmt"
	"strings"

	"github.com/nhle/guest-services/internal/model"
)

// Verb names a palette command.
type Verb string

const (
	VerbRefresh Verb = "refresh"
	VerbQuit    Verb = "quit"
	VerbSeen    Verb = "seen"
	VerbSection Verb = "section"
	VerbCancel  Verb = "cancel"
)

// Command is a parsed palette command.
type Command struct {
	Verb Verb

	// Section is the target of seen and section; "" means every section.
	Section string

	// Type and ID identify the target of cancel.
	Type model.ItemType
	ID   string
}

// Parse turns palette input into a Command. Accepted forms:
//
//	refresh | sync
//	quit | q
//	seen [all | <section>]
//	section [all | <section>]
//	cancel <type> <id>
func Parse(input string) (Command, error) {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("empty command")
	}

	verb, args := strings.ToLower(fields[0]), fields[1:]
	switch verb {
	case "refresh", "sync":
		return Command{Verb: VerbRefresh}, nil

	case "quit", "q":
		return Command{Verb: VerbQuit}, nil

	case "seen", "section":
		cmd := Command{Verb: Verb(verb)}
		if len(args) > 1 {
			return Command{}, fmt.Errorf("%s takes at most one section", verb)
		}
		if len(args) == 1 && args[0] != "all" {
			cmd.Section = args[0]
		}
		return cmd, nil

	case "cancel":
		if len(args) != 2 {
			return Command{}, fmt.Errorf("usage: cancel <type> <id>")
		}
		typ, ok := model.ParseItemType(args[0])
		if !ok {
			return Command{}, fmt.Errorf("unknown item type %q", args[0])
		}
		return Command{Verb: VerbCancel, Type: typ, ID: args[1]}, nil
	}

	return Command{}, fmt.Errorf("unknown command %q", verb)
}
