package toolcall

import (
	"context"
	"log"

	"github.com/andywolf/agentbench/internal/backend"
	"github.com/andywolf/agentbench/internal/role"
)

// Final flags.
const (
	// FlagUnrepaired marks a draft that failed validation and could not
	// be repaired; Final.Raw passes through unmodified.
	FlagUnrepaired = "unrepaired"

	// FlagRepaired marks a draft the editor rewrote into a valid call.
	FlagRepaired = "repaired"

	// FlagReselected marks a draft whose tool fell outside the selected
	// subset and forced a second selection round.
	FlagReselected = "reselected"
)

// Final is the pipeline's output for one draft: either validated calls,
// or the untouched raw draft with FlagUnrepaired set. Exactly one of the
// two holds.
type Final struct {
	Calls []Call
	Raw   string
	Flags []string
}

// Valid reports whether the pipeline produced validated calls.
func (f Final) Valid() bool { return len(f.Calls) > 0 && !f.flagged(FlagUnrepaired) }

func (f Final) flagged(name string) bool {
	for _, fl := range f.Flags {
		if fl == name {
			return true
		}
	}
	return false
}

// Selector narrows the catalog for one exchange. *role.Selector
// satisfies it.
type Selector interface {
	Select(ctx context.Context, tools []role.ToolMeta, history []backend.Message) ([]string, error)
}

// Editor repairs a draft's format drift. *role.Editor satisfies it.
type Editor interface {
	Repair(ctx context.Context, raw string) (role.EditResult, error)
}

// Pipeline validates actor drafts against the catalog. Composition is
// set at construction: plain, with a selector, with an editor, or both.
type Pipeline struct {
	catalog  *Catalog
	selector Selector
	editor   Editor
	logger   *log.Logger
}

func NewPipeline(catalog *Catalog, selector Selector, editor Editor, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = log.New(log.Writer(), "[pipeline] ", log.LstdFlags)
	}
	return &Pipeline{catalog: catalog, selector: selector, editor: editor, logger: logger}
}

// Process turns a raw draft into a Final. With a selector, drafts naming
// a catalog tool outside the selected subset trigger one reselection
// with the draft visible as context; a call still outside the subset is
// rejected, never forwarded. With an editor, parse and schema failures
// get one repair round. A draft rejected by every stage passes through
// unmodified with FlagUnrepaired.
func (p *Pipeline) Process(ctx context.Context, history []backend.Message, raw string) Final {
	active := p.catalog
	var flags []string

	if p.selector != nil {
		active = p.narrow(ctx, history)
	}

	calls, err := ParseCalls(raw)
	reject := err
	if err == nil {
		verr := p.validateAll(active, calls)
		if verr == nil {
			return Final{Calls: calls, Raw: raw, Flags: flags}
		}
		reject = verr
		if p.selector != nil && p.inCatalogButNotActive(active, calls) {
			// The actor wants a real tool the selector dropped. Reselect
			// with the draft appended so the selector sees the intent.
			p.logger.Printf("draft names tool outside selection, reselecting")
			flags = append(flags, FlagReselected)
			widened := append(append([]backend.Message(nil), history...),
				backend.Message{Role: "assistant", Content: raw})
			active = p.narrowWith(ctx, widened)
			verr = p.validateAll(active, calls)
			if verr == nil {
				return Final{Calls: calls, Raw: raw, Flags: flags}
			}
			reject = verr
		}
	}

	if p.editor == nil {
		p.logger.Printf("draft rejected without editor: %v", reject)
		return Final{Raw: raw, Flags: append(flags, FlagUnrepaired)}
	}

	repaired, rerr := p.editor.Repair(ctx, raw)
	if rerr != nil || repaired.NoValid {
		return Final{Raw: raw, Flags: append(flags, FlagUnrepaired)}
	}
	calls, err = ParseCalls(repaired.Output)
	if err == nil {
		err = p.validateAll(active, calls)
	}
	if err != nil {
		p.logger.Printf("repair did not produce a valid call: %v", err)
		return Final{Raw: raw, Flags: append(flags, FlagUnrepaired)}
	}
	if !repaired.Unchanged {
		flags = append(flags, FlagRepaired)
	}
	return Final{Calls: calls, Raw: repaired.Output, Flags: flags}
}

func (p *Pipeline) validateAll(active *Catalog, calls []Call) error {
	for _, c := range calls {
		if err := active.Validate(c); err != nil {
			return err
		}
	}
	return nil
}

// inCatalogButNotActive reports whether every call names a real catalog
// tool while at least one falls outside the active subset.
func (p *Pipeline) inCatalogButNotActive(active *Catalog, calls []Call) bool {
	outside := false
	for _, c := range calls {
		if _, ok := p.catalog.Get(c.Name); !ok {
			return false
		}
		if _, ok := active.Get(c.Name); !ok {
			outside = true
		}
	}
	return outside
}

func (p *Pipeline) narrow(ctx context.Context, history []backend.Message) *Catalog {
	return p.narrowWith(ctx, history)
}

func (p *Pipeline) narrowWith(ctx context.Context, history []backend.Message) *Catalog {
	names, err := p.selector.Select(ctx, p.catalog.Meta(), history)
	if err != nil || len(names) == 0 {
		return p.catalog
	}
	return p.catalog.Subset(names)
}
