package identity

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// SeedFile is the TOML layout read by LoadSeedFile:
//
//	[[users]]
//	username = "alice"
//	password = "..."
//	display_name = "Alice"
type SeedFile struct {
	Users []SeededUser `toml:"users"`
}

// LoadSeedFile reads seeded accounts from path. Unknown keys are an error so
// a typo does not silently drop a field.
func LoadSeedFile(path string) ([]SeededUser, error) {
	var f SeedFile
	md, err := toml.DecodeFile(path, &f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("seed file %s: unknown keys %v", path, undecoded)
	}
	for i, u := range f.Users {
		if u.Username == "" {
			return nil, fmt.Errorf("seed file %s: users[%d] has no username", path, i)
		}
	}
	return f.Users, nil
}
