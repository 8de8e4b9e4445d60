// Package env reads the process-wide switches that steer configuration loading
// from outside of an option set: where the root configuration lives, whether
// environment variables force overrides, and where local files are looked up.
package env

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	// resourceVar names a resource to read from the loader context instead of the default root.
	resourceVar = "CONFIG_RESOURCE"
	// fileVar names a filesystem path to read instead of the default root.
	fileVar = "CONFIG_FILE"
	// urlVar names an http(s) URL to read instead of the default root.
	urlVar = "CONFIG_URL"

	// overrideVar, when true, layers CONFIG_FORCE_* variables over every loaded tree.
	overrideVar = "CONFIG_OVERRIDE_WITH_ENV_VARS"
	// OverridePrefix is the prefix of variables that force a configuration value.
	// CONFIG_FORCE_a_b__c___d sets the path "a.b-c_d".
	OverridePrefix = "CONFIG_FORCE_"

	// confDirVar is the directory used as the default loader context.
	confDirVar = "CONF_DIR"
	// logLevelVar sets the log level of the command line tool.
	logLevelVar = "CONFSOURCE_LOG_LEVEL"
)

const (
	// RootDefault means no out-of-band root was requested.
	RootDefault RootKind = iota
	// RootResource reads the root from a named resource in the loader context.
	RootResource
	// RootFile reads the root from a filesystem path.
	RootFile
	// RootURL reads the root from a URL.
	RootURL
)

type (
	// RootKind tells where an out-of-band root configuration comes from.
	RootKind int

	// RootLocation is the out-of-band root requested through the environment.
	RootLocation struct {
		Kind     RootKind
		Location string
	}

	// AmbiguousRootError is returned when more than one root switch is set.
	AmbiguousRootError struct {
		Set map[string]string
	}
)

func (e AmbiguousRootError) Error() string {
	parts := make([]string, 0, len(e.Set))
	for _, k := range []string{fileVar, urlVar, resourceVar} {
		if v, ok := e.Set[k]; ok {
			parts = append(parts, fmt.Sprintf("%s=%q", k, v))
		}
	}
	return fmt.Sprintf("more than one root configuration switch is set (%s); don't know which one to use", strings.Join(parts, ", "))
}

// Root returns the out-of-band root location. It is RootDefault when no switch
// is set and an AmbiguousRootError when more than one is.
//
// Example:
//
//	// CONFIG_FILE=/etc/myapp/prod.yaml
//	root, err := env.Root()
//	// root.Kind == env.RootFile, root.Location == "/etc/myapp/prod.yaml"
func Root() (RootLocation, error) {
	set := make(map[string]string)
	for _, k := range []string{resourceVar, fileVar, urlVar} {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			set[k] = v
		}
	}

	switch {
	case len(set) == 0:
		return RootLocation{Kind: RootDefault}, nil
	case len(set) > 1:
		return RootLocation{}, AmbiguousRootError{Set: set}
	}

	if v, ok := set[resourceVar]; ok {
		return RootLocation{Kind: RootResource, Location: v}, nil
	}
	if v, ok := set[fileVar]; ok {
		return RootLocation{Kind: RootFile, Location: v}, nil
	}
	return RootLocation{Kind: RootURL, Location: set[urlVar]}, nil
}

// OverrideWithEnvVars reports whether CONFIG_FORCE_* variables should override loaded values.
func OverrideWithEnvVars() bool {
	b, err := strconv.ParseBool(os.Getenv(overrideVar))
	return err == nil && b
}

// ConfDir returns the directory of the default loader context, "." when unset.
func ConfDir() string {
	if d := os.Getenv(confDirVar); d != "" {
		return d
	}
	return "."
}

// LogLevel returns the requested log level, "info" when unset.
func LogLevel() string {
	if l := os.Getenv(logLevelVar); l != "" {
		return strings.ToLower(l)
	}
	return "info"
}

func (k RootKind) String() string {
	switch k {
	case RootDefault:
		return "default"
	case RootResource:
		return "resource"
	case RootFile:
		return "file"
	case RootURL:
		return "url"
	default:
		return "unknown"
	}
}
