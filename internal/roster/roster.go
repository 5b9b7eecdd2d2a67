// Package roster loads and validates the list of monitored servers.
//
// The roster is fixed for the lifetime of the process. Each server gets a
// stable numeric ID (its position in the list) and is keyed in storage by
// its address.
package roster

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf16"

	"gopkg.in/yaml.v3"

	"github.com/xtxerr/playertrack/internal/constants"
	"github.com/xtxerr/playertrack/internal/errors"
	"github.com/xtxerr/playertrack/internal/validation"
)

// Server is one monitored server.
type Server struct {
	ID    int    `yaml:"-" json:"id"`
	Name  string `yaml:"name" json:"name"`
	IP    string `yaml:"ip" json:"ip"`
	Port  int    `yaml:"port,omitempty" json:"port,omitempty"`
	Type  string `yaml:"type" json:"type"`
	Color string `yaml:"color,omitempty" json:"color"`
}

// Key returns the storage key of the server.
func (s *Server) Key() string {
	return s.IP
}

// Roster is the validated, immutable server list.
type Roster struct {
	servers []Server
	byKey   map[string]int
}

// New validates servers, assigns IDs and fills missing colors.
func New(servers []Server) (*Roster, error) {
	errs := errors.NewValidationErrors()
	r := &Roster{
		servers: make([]Server, len(servers)),
		byKey:   make(map[string]int, len(servers)),
	}

	for i, s := range servers {
		s.ID = i
		s.Name = strings.TrimSpace(s.Name)
		s.IP = strings.TrimSpace(s.IP)

		if s.Name == "" {
			errs.AddMissing(fmt.Sprintf("servers[%d].name", i))
		} else if err := validation.ValidateServerName(s.Name); err != nil {
			errs.AddField(fmt.Sprintf("servers[%d].name", i), err.Error())
		}
		if s.IP == "" {
			errs.AddMissing(fmt.Sprintf("servers[%d].ip", i))
		} else if err := validation.ValidateHost(s.IP); err != nil {
			errs.AddField(fmt.Sprintf("servers[%d].ip", i), err.Error())
		} else if prev, dup := r.byKey[s.IP]; dup {
			errs.AddField(fmt.Sprintf("servers[%d].ip", i),
				fmt.Sprintf("duplicates servers[%d]", prev))
		} else {
			r.byKey[s.IP] = i
		}
		if !constants.IsValidKind(s.Type) {
			errs.Add(fmt.Errorf("servers[%d] %q: type %q must be PC or PE: %w",
				i, s.Name, s.Type, errors.ErrInvalidKind))
		}
		if err := validation.ValidatePort(s.Port); err != nil {
			errs.AddField(fmt.Sprintf("servers[%d].port", i), err.Error())
		}
		if s.Color == "" && s.Name != "" {
			s.Color = ColorFor(s.Name)
		} else if s.Color != "" {
			if err := validation.ValidateColor(s.Color); err != nil {
				errs.AddField(fmt.Sprintf("servers[%d].color", i), err.Error())
			}
		}

		r.servers[i] = s
	}

	if err := errs.ErrOrNil(); err != nil {
		return nil, err
	}
	return r, nil
}

// All returns the servers in ID order.
func (r *Roster) All() []Server {
	out := make([]Server, len(r.servers))
	copy(out, r.servers)
	return out
}

// Len returns the number of servers.
func (r *Roster) Len() int {
	return len(r.servers)
}

// ByID returns the server with the given ID.
func (r *Roster) ByID(id int) (Server, bool) {
	if id < 0 || id >= len(r.servers) {
		return Server{}, false
	}
	return r.servers[id], true
}

// ByKey returns the server with the given storage key.
func (r *Roster) ByKey(key string) (Server, bool) {
	i, ok := r.byKey[key]
	if !ok {
		return Server{}, false
	}
	return r.servers[i], true
}

// =============================================================================
// Loading
// =============================================================================

// Parse decodes a roster document. JSON arrays and YAML sequences are
// both accepted.
func Parse(data []byte) ([]Server, error) {
	var servers []Server

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &servers); err != nil {
			return nil, fmt.Errorf("%w: %v", errors.ErrInvalidFormat, err)
		}
		return servers, nil
	}

	if err := yaml.Unmarshal(trimmed, &servers); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidFormat, err)
	}
	return servers, nil
}

// LoadFile reads and parses a roster file.
func LoadFile(path string) ([]Server, error) {
	if !filepath.IsAbs(path) {
		if wd, err := os.Getwd(); err == nil {
			path = filepath.Join(wd, path)
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster: %w", err)
	}
	servers, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "parse roster %s", path)
	}
	return servers, nil
}

// Source selects where the roster comes from. Inline wins over File.
type Source struct {
	Inline string
	File   string
}

// Load resolves the source and validates the result.
func Load(src Source) (*Roster, error) {
	var (
		servers []Server
		err     error
	)
	if strings.TrimSpace(src.Inline) != "" {
		servers, err = Parse([]byte(src.Inline))
		err = errors.Wrap(err, "parse inline roster")
	} else {
		servers, err = LoadFile(src.File)
	}
	if err != nil {
		return nil, err
	}
	return New(servers)
}

// =============================================================================
// Colors
// =============================================================================

// ColorFor derives a stable "#rrggbb" color from a server name. The hash
// runs over UTF-16 code units with 32-bit shift semantics.
func ColorFor(name string) string {
	units := utf16.Encode([]rune(name))

	var hash float64
	for i := len(units) - 1; i >= 0; i-- {
		shifted := float64(toInt32(hash) << 5)
		hash = float64(units[i]) + (shifted - hash)
	}

	v := math.Floor(math.Abs(math.Mod(math.Sin(hash)*10000, 1) * 16777216))
	hex := strconv.FormatInt(int64(v), 16)
	if len(hex) < 6 {
		hex = strings.Repeat("0", 6-len(hex)) + hex
	}
	return "#" + hex
}

// toInt32 applies the ECMAScript ToInt32 conversion.
func toInt32(f float64) int32 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int32(uint32(int64(math.Trunc(f))))
}
