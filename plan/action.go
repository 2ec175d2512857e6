// Package plan implements the histedit edit script: parsing, verification
// and default generation of the ordered (action, commit-id) list that
// drives the orchestrator (spec §4.2).
package plan

import "fmt"

// Action is one of the five per-commit operations a Plan entry names.
type Action int

const (
	Pick Action = iota
	Edit
	Fold
	Drop
	Mess
)

// String returns the long name, as used when re-serializing a plan.
func (a Action) String() string {
	switch a {
	case Pick:
		return "pick"
	case Edit:
		return "edit"
	case Fold:
		return "fold"
	case Drop:
		return "drop"
	case Mess:
		return "mess"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// actionNames maps both short and long tokens to their Action, exactly the
// set the original's verb table recognizes.
var actionNames = map[string]Action{
	"p": Pick, "pick": Pick,
	"e": Edit, "edit": Edit,
	"f": Fold, "fold": Fold,
	"d": Drop, "drop": Drop,
	"m": Mess, "mess": Mess,
}

// ParseAction resolves a short or long action token. ok is false for any
// token not in actionNames.
func ParseAction(token string) (a Action, ok bool) {
	a, ok = actionNames[token]
	return a, ok
}
