package jinja

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/Masterminds/sprig/v3"
	"github.com/dustin/go-humanize"
	"github.com/microcosm-cc/bluemonday"
	"github.com/nikolalohinski/gonja/exec"
)

var (
	sanitizePolicyOnce sync.Once
	sanitizePolicy     *bluemonday.Policy
)

func sanitizer() *bluemonday.Policy {
	sanitizePolicyOnce.Do(func() {
		sanitizePolicy = bluemonday.UGCPolicy()
	})
	return sanitizePolicy
}

// filterSanitize strips unsafe markup and marks the result safe, so it is
// not escaped again under autoescape.
func filterSanitize(_ *exec.Evaluator, in *exec.Value, _ *exec.VarArgs) *exec.Value {
	if in.IsError() {
		return in
	}
	if in.IsNil() {
		return exec.AsSafeValue("")
	}
	return exec.AsSafeValue(sanitizer().Sanitize(in.String()))
}

// filterNaturalTime renders a time as "3 days ago". Other values pass
// through unchanged.
func filterNaturalTime(_ *exec.Evaluator, in *exec.Value, _ *exec.VarArgs) *exec.Value {
	if t, ok := in.Interface().(time.Time); ok {
		if t.IsZero() {
			return exec.AsValue("")
		}
		return exec.AsValue(humanize.Time(t))
	}
	return in
}

func filterOrdinal(_ *exec.Evaluator, in *exec.Value, _ *exec.VarArgs) *exec.Value {
	if !in.IsInteger() {
		return exec.AsValue(fmt.Errorf("ordinal expects an integer, got %s", in.String()))
	}
	return exec.AsValue(humanize.Ordinal(in.Integer()))
}

// sprigStringFilters are the sprig string transforms exposed as filters,
// e.g. {{ title|kebabcase }} for building slugs.
var sprigStringFilters = []string{"kebabcase", "snakecase", "camelcase", "initials", "swapcase"}

func stringFilter(fn func(string) string) exec.FilterFunction {
	return func(_ *exec.Evaluator, in *exec.Value, _ *exec.VarArgs) *exec.Value {
		if in.IsError() {
			return in
		}
		return exec.AsValue(fn(in.String()))
	}
}

// abbrevFilter shortens a string to a width with an ellipsis:
// {{ summary|abbrev(80) }}.
func abbrevFilter(fn func(int, string) string) exec.FilterFunction {
	return func(_ *exec.Evaluator, in *exec.Value, params *exec.VarArgs) *exec.Value {
		if in.IsError() {
			return in
		}
		if len(params.Args) != 1 || !params.Args[0].IsInteger() {
			return exec.AsValue(fmt.Errorf("abbrev expects one integer width"))
		}
		return exec.AsValue(fn(params.Args[0].Integer(), in.String()))
	}
}

func (p *Processor) installFilters() error {
	filters := map[string]exec.FilterFunction{
		"sanitize":    filterSanitize,
		"naturaltime": filterNaturalTime,
		"ordinal":     filterOrdinal,
	}

	funcs := sprig.GenericFuncMap()
	for _, name := range sprigStringFilters {
		fn, ok := funcs[name].(func(string) string)
		if !ok {
			return fmt.Errorf("sprig function %s is not a string transform", name)
		}
		filters[name] = stringFilter(fn)
	}
	abbrev, ok := funcs["abbrev"].(func(int, string) string)
	if !ok {
		return fmt.Errorf("sprig function abbrev has an unexpected signature")
	}
	filters["abbrev"] = abbrevFilter(abbrev)

	for name, fn := range filters {
		if err := p.env.Filters.Register(name, fn); err != nil {
			return err
		}
	}
	return nil
}

// contextFunc returns the getcontexts template function bound to ctx.
func (p *Processor) contextFunc(ctx context.Context) func(va *exec.VarArgs) *exec.Value {
	return func(va *exec.VarArgs) *exec.Value {
		if len(va.Args) != 2 {
			return exec.AsValue(fmt.Errorf("%s expects 2 arguments, got %d", p.config.ContextFunc, len(va.Args)))
		}
		results, err := p.lookupContexts(ctx, valueString(va.Args[0]), valueString(va.Args[1]))
		if err != nil {
			return exec.AsValue(err)
		}
		return exec.AsValue(results)
	}
}

// lookupContexts describes every source that set name to value, ordered by
// source path.
func (p *Processor) lookupContexts(ctx context.Context, name, value string) ([]map[string]interface{}, error) {
	contexts, err := p.app.Contexts.GetContexts(ctx, name, value)
	if err != nil {
		return nil, err
	}
	results := make([]map[string]interface{}, 0, len(contexts))
	for _, c := range contexts {
		vars, err := p.sourceVars(ctx, c.Source)
		if err != nil {
			return nil, err
		}
		own, err := p.app.Contexts.GetSourceContexts(ctx, c.Source)
		if err != nil {
			return nil, err
		}
		for _, v := range own {
			vars[v.Name] = v.Value
		}
		results = append(results, vars)
	}
	return results, nil
}

// sourceVars returns url, urls, size and modified of a source. url is set
// only when the source generates exactly one file. Unknown sources yield an
// empty map.
func (p *Processor) sourceVars(ctx context.Context, path string) (map[string]interface{}, error) {
	vars := map[string]interface{}{}
	src, err := p.app.Sources.GetSource(ctx, path)
	if err != nil {
		return nil, err
	}
	if src == nil {
		return vars, nil
	}
	targets, err := p.app.Sources.GetTargets(ctx, path)
	if err != nil {
		return nil, err
	}
	urls := make([]string, 0, len(targets))
	for _, t := range targets {
		urls = append(urls, p.app.URL(t))
	}
	if len(urls) == 1 {
		vars["url"] = urls[0]
	}
	vars["urls"] = urls
	vars["size"] = src.Size
	vars["modified"] = src.Modified
	return vars, nil
}

// valueString converts a runtime argument the way literals are stored.
func valueString(v *exec.Value) string {
	switch {
	case v.IsNil():
		return ""
	case v.IsBool():
		return strconv.FormatBool(v.Bool())
	case v.IsInteger():
		return strconv.Itoa(v.Integer())
	case v.IsFloat():
		return strconv.FormatFloat(v.Float(), 'g', -1, 64)
	}
	return v.String()
}
