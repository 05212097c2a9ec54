package script

import "github.com/crawltpl/crawltpl/crawlerr"

// Vars is the read contract a script needs from the runtime variable
// store to resolve ${name} references. engine.Store implements this; the
// interface lives here (rather than being imported from engine) so that
// script has no dependency on engine, avoiding an import cycle.
type Vars interface {
	// Resolve returns the captured values for name and whether the name
	// has ever been seeded or captured. A name that was never seen
	// returns (nil, false).
	Resolve(name string) ([]string, bool)
}

// resolve implements the dynamic parameter rules from spec §4.B: absent
// name -> DynNotInitialised, present-but-empty -> DynNoValidData,
// more-than-one value -> DynMultipleResults. Static params resolve to
// themselves and never fail.
func (p Param) resolve(vars Vars) (string, error) {
	if p.kind == paramStatic {
		return p.value, nil
	}

	values, ok := vars.Resolve(p.value)
	if !ok {
		return "", crawlerr.New(crawlerr.KindDynNotInitialised, "variable not initialised").WithNode(p.value)
	}
	if len(values) == 0 {
		return "", crawlerr.New(crawlerr.KindDynNoValidData, "variable has no captured values").WithNode(p.value)
	}
	if len(values) > 1 {
		return "", (&crawlerr.Error{
			Kind:    crawlerr.KindDynMultipleResults,
			Message: "variable has multiple values, a scalar was required",
			Node:    p.value,
			Wanted:  1,
			Got:     len(values),
		})
	}
	return values[0], nil
}
