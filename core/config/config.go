package config

import (
	"crypto/rand"
	"net"
	"net/netip"

	"github.com/gogf/gf/v2/encoding/gjson"
	"github.com/gogf/gf/v2/os/gfile"
	"github.com/pkg/errors"

	"github.com/wlynxg/fcnet/core/neigh"
	mlog "github.com/wlynxg/fcnet/pkgs/log"
)

const (
	DefaultNameTemplate = "fc%d"
	DefaultSnapLen      = 65535
)

// Neighbor is a static next hop: every address in Prefix is reached
// through HardwareAddr.
type Neighbor struct {
	Prefix       string
	HardwareAddr string
}

type Config struct {
	path         string
	NameTemplate string
	HardwareAddr string
	Queues       int
	// PreserveSource keeps the source address of Ethernet input frames
	// instead of using the device address.
	PreserveSource bool
	SnapLen        int
	Neighbors      []Neighbor
	LogConfigs     []mlog.CoreConfig
}

func (c *Config) Save() error {
	if c.path == "" {
		return nil
	}
	if err := gfile.PutBytes(c.path, gjson.New(c).MustToJsonIndent()); err != nil {
		return errors.Wrapf(err, "save config %s", c.path)
	}
	return nil
}

// Load reads the config at path, fills in defaults and writes the result
// back so that generated values survive restarts. An empty path yields a
// default config that is never saved.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" && gfile.Exists(path) {
		load, err := gjson.Load(path)
		if err != nil {
			return nil, errors.Wrapf(err, "load config %s", path)
		}

		if err := load.Scan(&cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", path)
		}
	}

	cfg.path = path
	if err := defaultConfig(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Save(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig(cfg *Config) error {
	if cfg.NameTemplate == "" {
		cfg.NameTemplate = DefaultNameTemplate
	}

	if cfg.Queues == 0 {
		cfg.Queues = 1
	}

	if cfg.SnapLen <= 0 {
		cfg.SnapLen = DefaultSnapLen
	}

	if cfg.HardwareAddr == "" {
		addr, err := randomAddr()
		if err != nil {
			return err
		}
		cfg.HardwareAddr = addr.String()
	}

	if len(cfg.LogConfigs) == 0 {
		cfg.LogConfigs = []mlog.CoreConfig{{OutputType: "console", OutputPath: "stderr", Level: "info"}}
	}
	return nil
}

// randomAddr returns a locally administered unicast address.
func randomAddr() (net.HardwareAddr, error) {
	addr := make(net.HardwareAddr, 6)
	if _, err := rand.Read(addr); err != nil {
		return nil, errors.Wrap(err, "generate hardware address")
	}
	addr[0] = addr[0]&0xfe | 0x02
	return addr, nil
}

func (c *Config) ParseHardwareAddr() (net.HardwareAddr, error) {
	addr, err := net.ParseMAC(c.HardwareAddr)
	if err != nil {
		return nil, errors.Wrapf(err, "hardware address %q", c.HardwareAddr)
	}
	return addr, nil
}

func (c *Config) ParseNeighbors() ([]neigh.Entry, error) {
	entries := make([]neigh.Entry, 0, len(c.Neighbors))
	for _, n := range c.Neighbors {
		prefix, err := netip.ParsePrefix(n.Prefix)
		if err != nil {
			return nil, errors.Wrapf(err, "neighbor prefix %q", n.Prefix)
		}
		addr, err := net.ParseMAC(n.HardwareAddr)
		if err != nil {
			return nil, errors.Wrapf(err, "neighbor %s hardware address %q", n.Prefix, n.HardwareAddr)
		}
		entries = append(entries, neigh.Entry{Prefix: prefix, HardwareAddr: addr})
	}
	return entries, nil
}
