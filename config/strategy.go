package config

import (
	"fmt"
	"strings"
)

// Field weights. Each loading input has a distinct power of two so that a set
// of present inputs sums to a unique mask.
const (
	FieldResourceName   Fields = 1 << iota // 1
	FieldLoaderContext                     // 2
	FieldPresetTree                        // 4
	FieldResolveOptions                    // 8
	FieldParseOptions                      // 16

	// FieldNone is the mask of an option set with nothing supplied.
	FieldNone Fields = 0

	fieldsAll = FieldResourceName | FieldLoaderContext | FieldPresetTree | FieldResolveOptions | FieldParseOptions
)

// Strategy enumerates the supported ways of invoking the parser.
const (
	StrategyDefault Strategy = iota
	StrategyLoaderContext
	StrategyLoaderContextPresetTree
	StrategyLoaderContextPresetTreeResolveOptions
	StrategyLoaderContextParseOptions
	StrategyLoaderContextParseOptionsResolveOptions
	StrategyLoaderContextResolveOptions
	StrategyLoaderContextResourceName
	StrategyLoaderContextResourceNameParseOptionsResolveOptions
	StrategyPresetTree
	StrategyPresetTreeResolveOptions
	StrategyParseOptions
	StrategyParseOptionsResolveOptions
	StrategyResourceName
	StrategyResourceNameParseOptionsResolveOptions

	strategyCount int = iota
)

type (
	// Fields is a bitmask of loading inputs.
	Fields int

	// Strategy is one parameter-bound way of invoking the parser.
	Strategy int

	strategyRow struct {
		name   string
		fields Fields
	}
)

var (
	fieldNames = []struct {
		field Fields
		name  string
	}{
		{FieldResourceName, "resourceName"},
		{FieldLoaderContext, "loaderContext"},
		{FieldPresetTree, "presetTree"},
		{FieldResolveOptions, "resolveOptions"},
		{FieldParseOptions, "parseOptions"},
	}

	strategyTable = [strategyCount]strategyRow{
		StrategyDefault:                       {"default", FieldNone},
		StrategyLoaderContext:                 {"loader_context", FieldLoaderContext},
		StrategyLoaderContextPresetTree:       {"loader_context_preset_tree", FieldLoaderContext | FieldPresetTree},
		StrategyLoaderContextPresetTreeResolveOptions: {
			"loader_context_preset_tree_resolve_options",
			FieldLoaderContext | FieldPresetTree | FieldResolveOptions,
		},
		StrategyLoaderContextParseOptions: {"loader_context_parse_options", FieldLoaderContext | FieldParseOptions},
		StrategyLoaderContextParseOptionsResolveOptions: {
			"loader_context_parse_options_resolve_options",
			FieldLoaderContext | FieldParseOptions | FieldResolveOptions,
		},
		StrategyLoaderContextResolveOptions: {"loader_context_resolve_options", FieldLoaderContext | FieldResolveOptions},
		StrategyLoaderContextResourceName:   {"loader_context_resource_name", FieldLoaderContext | FieldResourceName},
		StrategyLoaderContextResourceNameParseOptionsResolveOptions: {
			"loader_context_resource_name_parse_options_resolve_options",
			FieldLoaderContext | FieldResourceName | FieldParseOptions | FieldResolveOptions,
		},
		StrategyPresetTree:                 {"preset_tree", FieldPresetTree},
		StrategyPresetTreeResolveOptions:   {"preset_tree_resolve_options", FieldPresetTree | FieldResolveOptions},
		StrategyParseOptions:               {"parse_options", FieldParseOptions},
		StrategyParseOptionsResolveOptions: {"parse_options_resolve_options", FieldParseOptions | FieldResolveOptions},
		StrategyResourceName:               {"resource_name", FieldResourceName},
		StrategyResourceNameParseOptionsResolveOptions: {
			"resource_name_parse_options_resolve_options",
			FieldResourceName | FieldParseOptions | FieldResolveOptions,
		},
	}

	// strategyByMask is the dispatch table, indexed by mask. -1 marks an undeclared combination.
	strategyByMask = buildStrategyIndex()
)

// Select maps the inputs present in the option set to exactly one strategy.
// Only which inputs are present matters, never their values, so the decision
// is made before any I/O happens.
func Select(set OptionSet) (Strategy, error) {
	return SelectFields(set.Present())
}

// SelectFields maps a mask of present inputs to its strategy.
func SelectFields(f Fields) (Strategy, error) {
	if f < 0 || f > fieldsAll || strategyByMask[f] < 0 {
		return 0, AmbiguousOrInvalidConfigurationError{Mask: int(f), Present: f.Names()}
	}
	return Strategy(strategyByMask[f]), nil
}

// Strategies returns every declared strategy in declaration order.
func Strategies() []Strategy {
	s := make([]Strategy, strategyCount)
	for i := range s {
		s[i] = Strategy(i)
	}
	return s
}

// Fields returns the inputs this strategy forwards to the parser.
func (s Strategy) Fields() Fields {
	if !s.valid() {
		return FieldNone
	}
	return strategyTable[s].fields
}

// Mask returns the integer signature of the strategy.
func (s Strategy) Mask() int {
	return int(s.Fields())
}

func (s Strategy) String() string {
	if !s.valid() {
		return fmt.Sprintf("strategy(%d)", int(s))
	}
	return strategyTable[s].name
}

func (s Strategy) valid() bool {
	return s >= 0 && int(s) < strategyCount
}

// Has reports whether every field in o is present in f.
func (f Fields) Has(o Fields) bool {
	return f&o == o
}

// Names returns the names of the present fields in weight order.
func (f Fields) Names() []string {
	names := make([]string, 0, len(fieldNames))
	for _, fn := range fieldNames {
		if f.Has(fn.field) {
			names = append(names, fn.name)
		}
	}
	return names
}

func (f Fields) String() string {
	if f == FieldNone {
		return "none"
	}
	return strings.Join(f.Names(), "+")
}

func buildStrategyIndex() [fieldsAll + 1]int {
	var idx [fieldsAll + 1]int
	for i := range idx {
		idx[i] = -1
	}
	for i, row := range strategyTable {
		if idx[row.fields] != -1 {
			panic(fmt.Sprintf("config: strategies %s and %s share mask %d", Strategy(idx[row.fields]), row.name, row.fields))
		}
		idx[row.fields] = i
	}
	return idx
}
