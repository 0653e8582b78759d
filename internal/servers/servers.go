// Package servers reads the server list the game keeps in servers.dat.
package servers

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/beito123/nbt"

	"github.com/keyboard-slayer/mcstatus/internal/address"
	"github.com/keyboard-slayer/mcstatus/internal/mcerrors"
)

const FileName = "servers.dat"

// Entry is one saved server.
type Entry struct {
	Name     string
	Address  string
	Icon     string
	Endpoint address.Endpoint
}

func (e Entry) String() string {
	return fmt.Sprintf("%s (address: %s)", e.Name, e.Address)
}

// Load reads a servers.dat file. Entries whose address does not parse are
// skipped, a file that is not a server list is an error.
func Load(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: could not open servers file at %s: %w", mcerrors.ErrConfig, path, err)
	}

	entries, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return entries, nil
}

// Decode parses the uncompressed, big endian NBT the game writes:
// a root compound holding a "servers" list of {name, ip, icon} compounds.
func Decode(data []byte) ([]Entry, error) {
	stream := nbt.NewStreamBytes(nbt.BigEndian, data)

	tag, err := stream.ReadTag()
	if err != nil {
		return nil, fmt.Errorf("%w: malformed NBT: %w", mcerrors.ErrConfig, err)
	}

	root, ok := tag.(*nbt.Compound)
	if !ok {
		return nil, fmt.Errorf("%w: root tag is %T, want a compound", mcerrors.ErrConfig, tag)
	}

	// A client that never saved a server writes no list at all.
	raw, found := root.Value["servers"]
	if !found {
		return []Entry{}, nil
	}

	list, ok := raw.(*nbt.List)
	if !ok {
		return nil, fmt.Errorf("%w: servers tag is %T, want a list", mcerrors.ErrConfig, raw)
	}

	entries := make([]Entry, 0, len(list.Value))
	for i, item := range list.Value {
		server, ok := item.(*nbt.Compound)
		if !ok {
			return nil, fmt.Errorf("%w: server %d is %T, want a compound", mcerrors.ErrConfig, i, item)
		}

		entry := Entry{
			Name:    stringField(server, "name"),
			Address: stringField(server, "ip"),
			Icon:    stringField(server, "icon"),
		}

		if entry.Address == "" {
			slog.Warn("skipping server without address", "index", i, "name", entry.Name)
			continue
		}

		if entry.Name == "" {
			entry.Name = entry.Address
		}

		entry.Endpoint, err = address.Parse(entry.Address)
		if err != nil {
			slog.Warn("skipping server", "name", entry.Name, "error", err)
			continue
		}

		entries = append(entries, entry)
	}

	return entries, nil
}

func stringField(c *nbt.Compound, name string) string {
	tag, ok := c.Value[name]
	if !ok {
		return ""
	}

	s, ok := tag.(*nbt.String)
	if !ok {
		return ""
	}

	return s.Value
}

// FromAddress wraps an address given on the command line as a single entry.
func FromAddress(raw string) ([]Entry, error) {
	endpoint, err := address.Parse(raw)
	if err != nil {
		return nil, err
	}

	return []Entry{{Name: raw, Address: raw, Endpoint: endpoint}}, nil
}

// Env holds the parts of the environment InstanceDir looks at.
type Env struct {
	Home    string
	AppData string
}

// CurrentEnv reads Env from the running process.
func CurrentEnv() Env {
	home, _ := os.UserHomeDir()
	return Env{Home: home, AppData: os.Getenv("APPDATA")}
}

// InstanceDir returns where the launcher keeps the default instance on goos.
func InstanceDir(goos string, env Env) (string, error) {
	switch goos {
	case "windows":
		if env.AppData == "" {
			return "", fmt.Errorf("%w: APPDATA is not set, pass the instance folder explicitly", mcerrors.ErrConfig)
		}
		return filepath.Join(env.AppData, ".minecraft"), nil

	case "darwin":
		if env.Home == "" {
			return "", errNoHome
		}
		return filepath.Join(env.Home, "Library", "Application Support", "minecraft"), nil

	default:
		if env.Home == "" {
			return "", errNoHome
		}
		return filepath.Join(env.Home, ".minecraft"), nil
	}
}

var errNoHome = fmt.Errorf("%w: could not determine the home directory, pass the instance folder explicitly", mcerrors.ErrConfig)

// DefaultFile returns the servers.dat path inside an instance folder.
func DefaultFile(instance string) string {
	return filepath.Join(instance, FileName)
}

// IsMissing reports whether err comes from a servers file that does not exist.
func IsMissing(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
