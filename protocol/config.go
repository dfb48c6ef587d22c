package protocol

import (
	"errors"
	"fmt"
	"net/netip"
)

var (
	ErrInvalidPassword    = errors.New("Password must be 8 to 64 bytes for an encrypted network")
	ErrInvalidSSID        = errors.New("SSID must not be empty")
	ErrInvalidChannel     = errors.New("Channel must be between 1 and 14")
	ErrInvalidMaxStations = errors.New("Max stations must be between 1 and 4")
	ErrInvalidEncryption  = errors.New("Unknown encryption mode")
	ErrInvalidAddress     = errors.New("Static IP configuration needs valid IPv4 address, gateway and mask")
	ErrInvalidPort        = errors.New("Listener port must not be zero")
)

// WifiMode is the CWMODE ordinal.
type WifiMode uint8

const (
	ModeStation            WifiMode = 1
	ModeAccessPoint        WifiMode = 2
	ModeStationAccessPoint WifiMode = 3
)

func (m WifiMode) String() string {
	switch m {
	case ModeStation:
		return "station"
	case ModeAccessPoint:
		return "ap"
	case ModeStationAccessPoint:
		return "station+ap"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// Encryption is the CWSAP encryption ordinal. 1 (WEP) is not supported by the
// co-processor in AP mode.
type Encryption uint8

const (
	EncryptionOpen    Encryption = 0
	EncryptionWPA     Encryption = 2
	EncryptionWPA2    Encryption = 3
	EncryptionWPAWPA2 Encryption = 4
)

// ParseEncryption maps the configuration spelling to an Encryption.
func ParseEncryption(s string) (Encryption, error) {
	switch s {
	case "open":
		return EncryptionOpen, nil
	case "wpa":
		return EncryptionWPA, nil
	case "wpa2":
		return EncryptionWPA2, nil
	case "wpa_wpa2":
		return EncryptionWPAWPA2, nil
	default:
		return 0, fmt.Errorf("'%s': %w", s, ErrInvalidEncryption)
	}
}

// Credentials of a WiFi network.
type Credentials struct {
	SSID     string
	Password string
}

// IPMode selects how an interface obtains its address.
type IPMode uint8

const (
	DHCP IPMode = iota
	Static
)

// IPConfig is an interface's address assignment. IP, Gateway and Mask are
// only read when Mode is Static.
type IPConfig struct {
	Mode    IPMode
	IP      netip.Addr
	Gateway netip.Addr
	Mask    netip.Addr
}

// StaticIP builds a Static IPConfig.
func StaticIP(ip, gateway, mask netip.Addr) IPConfig {
	return IPConfig{Mode: Static, IP: ip, Gateway: gateway, Mask: mask}
}

func (c IPConfig) IsStatic() bool {
	return c.Mode == Static
}

func (c IPConfig) validate() error {
	if c.Mode != Static {
		return nil
	}

	for _, a := range []netip.Addr{c.IP, c.Gateway, c.Mask} {
		if !a.Is4() {
			return ErrInvalidAddress
		}
	}

	return nil
}

// AccessPoint describes the network the co-processor hosts.
type AccessPoint struct {
	Network     Credentials
	Channel     uint8
	Encryption  Encryption
	MaxStations uint8
	HideSSID    bool
}

func (ap AccessPoint) validate() error {
	if ap.Network.SSID == "" {
		return ErrInvalidSSID
	}

	if ap.Channel < 1 || ap.Channel > 14 {
		return ErrInvalidChannel
	}

	if ap.MaxStations < 1 || ap.MaxStations > 4 {
		return ErrInvalidMaxStations
	}

	switch ap.Encryption {
	case EncryptionOpen:
		return nil
	case EncryptionWPA, EncryptionWPA2, EncryptionWPAWPA2:
		if n := len(ap.Network.Password); n < 8 || n > 64 {
			return ErrInvalidPassword
		}

		return nil
	default:
		return ErrInvalidEncryption
	}
}

// Config is the WiFi configuration of a session. It is one of
// StationConfig, AccessPointConfig or StationAccessPointConfig and is never
// mutated once a session holds it.
type Config interface {
	Mode() WifiMode
	Port() uint16
	Validate() error

	isConfig()
}

// StationConfig joins an existing network.
type StationConfig struct {
	Network    Credentials
	IP         IPConfig
	ListenPort uint16
}

// AccessPointConfig hosts a network.
type AccessPointConfig struct {
	AccessPoint AccessPoint
	IP          IPConfig
	ListenPort  uint16
}

// StationAccessPointConfig joins a network and hosts one at the same time,
// sharing a single listener port.
type StationAccessPointConfig struct {
	Network       Credentials
	StationIP     IPConfig
	AccessPoint   AccessPoint
	AccessPointIP IPConfig
	ListenPort    uint16
}

func (StationConfig) Mode() WifiMode            { return ModeStation }
func (AccessPointConfig) Mode() WifiMode        { return ModeAccessPoint }
func (StationAccessPointConfig) Mode() WifiMode { return ModeStationAccessPoint }

func (c StationConfig) Port() uint16            { return c.ListenPort }
func (c AccessPointConfig) Port() uint16        { return c.ListenPort }
func (c StationAccessPointConfig) Port() uint16 { return c.ListenPort }

func (StationConfig) isConfig()            {}
func (AccessPointConfig) isConfig()        {}
func (StationAccessPointConfig) isConfig() {}

func (c StationConfig) Validate() error {
	if c.Network.SSID == "" {
		return ErrInvalidSSID
	}

	if c.ListenPort == 0 {
		return ErrInvalidPort
	}

	return c.IP.validate()
}

func (c AccessPointConfig) Validate() error {
	if c.ListenPort == 0 {
		return ErrInvalidPort
	}

	if err := c.AccessPoint.validate(); err != nil {
		return err
	}

	return c.IP.validate()
}

func (c StationAccessPointConfig) Validate() error {
	if c.Network.SSID == "" {
		return ErrInvalidSSID
	}

	if c.ListenPort == 0 {
		return ErrInvalidPort
	}

	if err := c.AccessPoint.validate(); err != nil {
		return err
	}

	if err := c.StationIP.validate(); err != nil {
		return err
	}

	return c.AccessPointIP.validate()
}

// Resolve returns cfg as one of the three value types, dereferencing
// pointers to them. It returns false for nil configurations.
func Resolve(cfg Config) (Config, bool) {
	switch c := cfg.(type) {
	case StationConfig, AccessPointConfig, StationAccessPointConfig:
		return c, true
	case *StationConfig:
		if c != nil {
			return *c, true
		}
	case *AccessPointConfig:
		if c != nil {
			return *c, true
		}
	case *StationAccessPointConfig:
		if c != nil {
			return *c, true
		}
	}

	return nil, false
}

// Station returns the station half of cfg, if it has one.
func Station(cfg Config) (Credentials, IPConfig, bool) {
	cfg, _ = Resolve(cfg)

	switch c := cfg.(type) {
	case StationConfig:
		return c.Network, c.IP, true
	case StationAccessPointConfig:
		return c.Network, c.StationIP, true
	default:
		return Credentials{}, IPConfig{}, false
	}
}

// HostedNetwork returns the access-point half of cfg, if it has one.
func HostedNetwork(cfg Config) (AccessPoint, IPConfig, bool) {
	cfg, _ = Resolve(cfg)

	switch c := cfg.(type) {
	case AccessPointConfig:
		return c.AccessPoint, c.IP, true
	case StationAccessPointConfig:
		return c.AccessPoint, c.AccessPointIP, true
	default:
		return AccessPoint{}, IPConfig{}, false
	}
}

var _ Config = StationConfig{}
var _ Config = AccessPointConfig{}
var _ Config = StationAccessPointConfig{}
