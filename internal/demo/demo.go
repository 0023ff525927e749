// Package demo embeds a self-contained phonebook so the binary can be
// tried with `--demo` and no external files (spec §9 "Supplemented
// features").
package demo

import (
	_ "embed"

	"github.com/tapirbug/fernspielapparat/internal/phonebook"
)

//go:embed phonebook.yaml
var phonebookYAML []byte

// Load compiles the embedded demo phonebook. It never fails in practice —
// the embedded document is validated by this package's own tests — but
// returns an error to keep the same signature as phonebook.Load.
func Load() (*phonebook.Phonebook, error) {
	return phonebook.FromBytes(phonebookYAML)
}
