package config

// Compose applies an optional prefix to a loaded tree.
//
// Without a prefix the tree is returned unchanged. With a prefix the tree is
// narrowed to the object at that path; in NarrowWithFallback mode the full tree
// is layered underneath, so a lookup misses through from the narrowed view to
// the root using the original, unprefixed path. NarrowOnly drops everything
// outside the prefix.
func Compose(t *Tree, prefix string, hasPrefix bool, mode PrefixMode) (*Tree, error) {
	if !hasPrefix {
		return t, nil
	}

	sub, err := t.SubtreeAt(prefix)
	if err != nil {
		return nil, err
	}

	if mode == NarrowOnly {
		return sub, nil
	}
	return sub.WithFallback(t), nil
}

// ComposeSet applies the prefix settings of the option set.
func ComposeSet(t *Tree, set OptionSet) (*Tree, error) {
	prefix, ok := set.Prefix()
	return Compose(t, prefix, ok, set.PrefixMode())
}
