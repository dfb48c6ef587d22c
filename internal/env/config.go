package env

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"

	"github.com/luma/esplink/protocol"
)

var (
	ErrInvalidMode        = errors.New("ESPLINK_MODE must be station, ap or station+ap")
	ErrNoDevice           = errors.New("Set one of ESPLINK_SERIAL_DEVICE or ESPLINK_SERIAL_ADDR")
	ErrTwoDevices         = errors.New("ESPLINK_SERIAL_DEVICE and ESPLINK_SERIAL_ADDR are mutually exclusive")
	ErrInvalidMsgCapacity = errors.New("ESPLINK_MSG_CAPACITY must be between 1 and 255")
	ErrInvalidMaxClients  = errors.New("ESPLINK_MAX_CLIENTS must be between 1 and 5")
	ErrPartialStaticIP    = errors.New("A static IP needs an address, a gateway and a mask")
)

type Config struct {
	Mode string `env:"ESPLINK_MODE,default=station"`

	StationSSID     string `env:"ESPLINK_STA_SSID"`
	StationPassword string `env:"ESPLINK_STA_PASSWORD"`
	StationIP       string `env:"ESPLINK_STA_IP"`
	StationGateway  string `env:"ESPLINK_STA_GATEWAY"`
	StationMask     string `env:"ESPLINK_STA_MASK"`

	APSSID        string `env:"ESPLINK_AP_SSID"`
	APPassword    string `env:"ESPLINK_AP_PASSWORD"`
	APChannel     uint8  `env:"ESPLINK_AP_CHANNEL,default=1"`
	APEncryption  string `env:"ESPLINK_AP_ENCRYPTION,default=wpa2"`
	APMaxStations uint8  `env:"ESPLINK_AP_MAX_STATIONS,default=4"`
	APHidden      bool   `env:"ESPLINK_AP_HIDDEN"`
	APIP          string `env:"ESPLINK_AP_IP"`
	APGateway     string `env:"ESPLINK_AP_GATEWAY"`
	APMask        string `env:"ESPLINK_AP_MASK"`

	Port uint16 `env:"ESPLINK_PORT,default=333"`

	SerialDevice string `env:"ESPLINK_SERIAL_DEVICE"`
	SerialBaud   int    `env:"ESPLINK_SERIAL_BAUD,default=115200"`
	SerialAddr   string `env:"ESPLINK_SERIAL_ADDR"`

	CommandTimeout time.Duration `env:"ESPLINK_CMD_TIMEOUT,default=10s"`
	MaxClients     int           `env:"ESPLINK_MAX_CLIENTS,default=2"`
	MaxQueuedMsgs  int           `env:"ESPLINK_MAX_QUEUED_MSGS,default=4"`
	MsgCapacity    int           `env:"ESPLINK_MSG_CAPACITY,default=64"`

	Echo    bool          `env:"ESPLINK_ECHO"`
	LightOn time.Duration `env:"ESPLINK_LIGHT_ON,default=7h"`
	Day     time.Duration `env:"ESPLINK_DAY,default=24h"`

	LogLevel  string `env:"ESPLINK_LOG_LEVEL,default=info"`
	DebugHTTP bool   `env:"ESPLINK_DEBUG_HTTP"`
}

// LoadConfig reads .env.local, if there is one, and then the environment.
func LoadConfig(ctx context.Context) (*Config, error) {
	if err := godotenv.Load(".env.local"); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("Failed to load .env.local: %w", err)
		}
	}

	return LoadConfigFrom(ctx, envconfig.OsLookuper())
}

// LoadConfigFrom reads the configuration from l.
func LoadConfigFrom(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	config := Config{}

	if err := envconfig.ProcessWith(ctx, &config, l); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks the settings that do not belong to the WiFi configuration.
func (c *Config) Validate() error {
	switch {
	case c.SerialDevice == "" && c.SerialAddr == "":
		return ErrNoDevice
	case c.SerialDevice != "" && c.SerialAddr != "":
		return ErrTwoDevices
	}

	if c.MsgCapacity < 1 || c.MsgCapacity > 255 {
		return ErrInvalidMsgCapacity
	}

	if c.MaxClients < 1 || c.MaxClients > 5 {
		return ErrInvalidMaxClients
	}

	_, err := c.WifiConfig()
	return err
}

// WifiConfig builds the immutable session configuration.
func (c *Config) WifiConfig() (protocol.Config, error) {
	var cfg protocol.Config

	switch c.Mode {
	case "station":
		ip, err := parseIPConfig(c.StationIP, c.StationGateway, c.StationMask)
		if err != nil {
			return nil, fmt.Errorf("station: %w", err)
		}

		cfg = protocol.StationConfig{
			Network:    protocol.Credentials{SSID: c.StationSSID, Password: c.StationPassword},
			IP:         ip,
			ListenPort: c.Port,
		}

	case "ap":
		ap, err := c.accessPoint()
		if err != nil {
			return nil, err
		}

		ip, err := parseIPConfig(c.APIP, c.APGateway, c.APMask)
		if err != nil {
			return nil, fmt.Errorf("access point: %w", err)
		}

		cfg = protocol.AccessPointConfig{AccessPoint: ap, IP: ip, ListenPort: c.Port}

	case "station+ap":
		ap, err := c.accessPoint()
		if err != nil {
			return nil, err
		}

		staIP, err := parseIPConfig(c.StationIP, c.StationGateway, c.StationMask)
		if err != nil {
			return nil, fmt.Errorf("station: %w", err)
		}

		apIP, err := parseIPConfig(c.APIP, c.APGateway, c.APMask)
		if err != nil {
			return nil, fmt.Errorf("access point: %w", err)
		}

		cfg = protocol.StationAccessPointConfig{
			Network:       protocol.Credentials{SSID: c.StationSSID, Password: c.StationPassword},
			StationIP:     staIP,
			AccessPoint:   ap,
			AccessPointIP: apIP,
			ListenPort:    c.Port,
		}

	default:
		return nil, fmt.Errorf("'%s': %w", c.Mode, ErrInvalidMode)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) accessPoint() (protocol.AccessPoint, error) {
	enc, err := protocol.ParseEncryption(c.APEncryption)
	if err != nil {
		return protocol.AccessPoint{}, err
	}

	return protocol.AccessPoint{
		Network:     protocol.Credentials{SSID: c.APSSID, Password: c.APPassword},
		Channel:     c.APChannel,
		Encryption:  enc,
		MaxStations: c.APMaxStations,
		HideSSID:    c.APHidden,
	}, nil
}

// parseIPConfig returns DHCP when all three are empty.
func parseIPConfig(ip, gateway, mask string) (protocol.IPConfig, error) {
	if ip == "" && gateway == "" && mask == "" {
		return protocol.IPConfig{Mode: protocol.DHCP}, nil
	}

	if ip == "" || gateway == "" || mask == "" {
		return protocol.IPConfig{}, ErrPartialStaticIP
	}

	addrs := make([]netip.Addr, 0, 3)
	for _, s := range []string{ip, gateway, mask} {
		a, err := netip.ParseAddr(s)
		if err != nil {
			return protocol.IPConfig{}, fmt.Errorf("%v: %w", err, protocol.ErrInvalidAddress)
		}
		addrs = append(addrs, a)
	}

	return protocol.StaticIP(addrs[0], addrs[1], addrs[2]), nil
}
