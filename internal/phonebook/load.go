package phonebook

import "os"

// Load reads, parses and compiles a phonebook file from disk. File-system
// loading of companion media itself is out of scope (spec §1) — this only
// reads the top-level YAML document's bytes.
func Load(path string) (*Phonebook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}
	return FromBytes(data)
}

// FromBytes parses and compiles a phonebook from raw YAML bytes, used both
// by Load and by the remote server's "run" command (spec §4.G, §6).
func FromBytes(data []byte) (*Phonebook, error) {
	doc, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return Compile(doc)
}
