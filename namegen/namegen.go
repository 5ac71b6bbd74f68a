// Package namegen produces human friendly node names.
package namegen

import (
	"strings"

	vendor "github.com/anandvarma/namegen"
)

var gen = vendor.New()

type ID string

func Get() ID {
	return ID(gen.Get())
}

// WithPrefix returns a name such as "<prefix>-<generated>", usable as an instance
// and host name.
func WithPrefix(prefix string) ID {
	prefix = strings.Trim(strings.ToLower(prefix), "-")
	name := strings.ToLower(strings.ReplaceAll(string(Get()), "_", "-"))
	if prefix == "" {
		return ID(name)
	}
	return ID(prefix + "-" + name)
}

func (id ID) String() string {
	return string(id)
}
