package template

import "strings"

// Well-known variables bound for every create call.
const (
	VarApp      = "app"
	VarID       = "id"
	VarName     = "name"
	VarInstance = "instance"
	VarVersion  = "version"
	VarMods     = "mods"
)

// Vars maps template tokens to their substitution.
type Vars map[string]string

// FromEnviron builds Vars from KEY=value pairs as returned by os.Environ.
// Entries without a key are skipped.
func FromEnviron(environ []string) Vars {
	v := make(Vars, len(environ)+8)
	for _, kv := range environ {
		key, val, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			continue
		}
		v[key] = val
	}
	return v
}

// With binds key to val, replacing any existing binding.
func (v Vars) With(key, val string) Vars {
	v[key] = val
	return v
}

// Overlay copies every binding of o into v. Bindings of o win.
func (v Vars) Overlay(o map[string]string) Vars {
	for k, val := range o {
		v[k] = val
	}
	return v
}
