package identity

import (
	"os"

	"github.com/BurntSushi/toml"

	"repofetch/internal/errors"
)

// aliasFile is the on-disk shape of the alias table:
//
//	[aliases]
//	widgets = "acme/widgets@main"
//	blob    = "meigma/blob"
type aliasFile struct {
	Aliases map[string]string `toml:"aliases"`
}

// LoadAliases reads the TOML alias table at path. Aliases are
// optional, so a missing file is not an error and yields an empty
// table.
func LoadAliases(path string) (map[string]Identity, error) {
	if path == "" {
		return map[string]Identity{}, nil
	}

	var file aliasFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		if os.IsNotExist(err) {
			return map[string]Identity{}, nil
		}
		return nil, errors.Wrap(errors.ConfigInvalid, "parsing alias file "+path, err)
	}

	aliases := make(map[string]Identity, len(file.Aliases))
	for name, target := range file.Aliases {
		id, err := Parse(target)
		if err != nil {
			return nil, errors.Wrap(errors.ConfigInvalid, "alias "+name+" is not a valid identity", err)
		}
		aliases[name] = id
	}
	return aliases, nil
}

// ResolveInput turns a caller-supplied repository argument into an
// Identity: alias names take precedence, anything else is parsed as
// an identity spelling.
func ResolveInput(input string, aliases map[string]Identity) (Identity, error) {
	if id, ok := aliases[input]; ok {
		return id, nil
	}
	return Parse(input)
}
