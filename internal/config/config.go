package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/spf13/viper"

	"mme/internal/hss"
	"mme/pkg/s1ap"
)

const EnvPrefix = "MME"

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	MME   MME   `mapstructure:"mme"`
	S1AP  S1AP  `mapstructure:"s1ap"`
	HSS   HSS   `mapstructure:"hss"`
	Log   Log   `mapstructure:"log"`
	Admin Admin `mapstructure:"admin"`
}

type MME struct {
	Name             string `mapstructure:"name"`
	MCC              string `mapstructure:"mcc"`
	MNC              string `mapstructure:"mnc"`
	GroupID          uint16 `mapstructure:"group_id"`
	Code             uint8  `mapstructure:"code"`
	RelativeCapacity uint8  `mapstructure:"relative_capacity"`
}

func (m MME) PLMN() s1ap.PLMN {
	return s1ap.PLMN{MCC: m.MCC, MNC: m.MNC}
}

type S1AP struct {
	// Transport is sctp or tcp.
	Transport  string   `mapstructure:"transport"`
	BindAddrs  []string `mapstructure:"bind_addrs"`
	Port       int      `mapstructure:"port"`
	MaxPDUSize int      `mapstructure:"max_pdu_size"`
	BufSize    int      `mapstructure:"bufsize"`
	SndBuf     int      `mapstructure:"sndbuf"`
	RcvBuf     int      `mapstructure:"rcvbuf"`
}

type HSS struct {
	// Backend is memory or redis.
	Backend     string                 `mapstructure:"backend"`
	Subscribers []hss.SubscriberConfig `mapstructure:"subscribers"`
	Redis       Redis                  `mapstructure:"redis"`
}

type Redis struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type Log struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type Admin struct {
	HTTPAddr string `mapstructure:"http_addr"`
	GRPCAddr string `mapstructure:"grpc_addr"`
}

// New returns a viper instance with every default set and environment
// overrides enabled, MME_S1AP_PORT for s1ap.port.
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("mme.name", "mme01")
	v.SetDefault("mme.mcc", "001")
	v.SetDefault("mme.mnc", "01")
	v.SetDefault("mme.group_id", 1)
	v.SetDefault("mme.code", 1)
	v.SetDefault("mme.relative_capacity", 255)

	v.SetDefault("s1ap.transport", "sctp")
	v.SetDefault("s1ap.bind_addrs", []string{"127.0.0.1"})
	v.SetDefault("s1ap.port", 36412)
	v.SetDefault("s1ap.max_pdu_size", s1ap.DefaultMaxPDUSize)
	v.SetDefault("s1ap.bufsize", s1ap.DefaultMaxPDUSize)
	v.SetDefault("s1ap.sndbuf", 0)
	v.SetDefault("s1ap.rcvbuf", 0)

	v.SetDefault("hss.backend", "memory")
	v.SetDefault("hss.redis.addr", "127.0.0.1:6379")
	v.SetDefault("hss.redis.db", 0)
	v.SetDefault("hss.redis.key_prefix", "hss:sub:")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("admin.http_addr", "127.0.0.1:9090")
	v.SetDefault("admin.grpc_addr", "")
	return v
}

// Load reads file, when given, on top of the defaults and validates the
// result.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read %s: %w", file, err)
		}
	}
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.MME.Name == "" {
		return fmt.Errorf("%w: mme.name is empty", ErrInvalid)
	}
	if err := c.MME.PLMN().Validate(); err != nil {
		return fmt.Errorf("%w: mme PLMN: %w", ErrInvalid, err)
	}

	switch c.S1AP.Transport {
	case "sctp", "tcp":
	default:
		return fmt.Errorf("%w: s1ap.transport %q", ErrInvalid, c.S1AP.Transport)
	}
	if len(c.S1AP.BindAddrs) == 0 {
		return fmt.Errorf("%w: s1ap.bind_addrs is empty", ErrInvalid)
	}
	if c.S1AP.Transport == "tcp" && len(c.S1AP.BindAddrs) > 1 {
		return fmt.Errorf("%w: tcp binds a single address", ErrInvalid)
	}
	for _, a := range c.S1AP.BindAddrs {
		if net.ParseIP(a) == nil {
			return fmt.Errorf("%w: s1ap.bind_addrs %q is not an IP address", ErrInvalid, a)
		}
	}
	if c.S1AP.Port < 1 || c.S1AP.Port > 0xffff {
		return fmt.Errorf("%w: s1ap.port %d", ErrInvalid, c.S1AP.Port)
	}
	if c.S1AP.MaxPDUSize < 1 {
		return fmt.Errorf("%w: s1ap.max_pdu_size %d", ErrInvalid, c.S1AP.MaxPDUSize)
	}
	if c.S1AP.Transport == "tcp" && c.S1AP.MaxPDUSize > 0xffff {
		return fmt.Errorf("%w: s1ap.max_pdu_size %d exceeds the tcp length prefix", ErrInvalid, c.S1AP.MaxPDUSize)
	}
	if c.S1AP.BufSize < c.S1AP.MaxPDUSize {
		return fmt.Errorf("%w: s1ap.bufsize %d is below max_pdu_size", ErrInvalid, c.S1AP.BufSize)
	}

	switch c.HSS.Backend {
	case "memory":
		for i, s := range c.HSS.Subscribers {
			if _, err := s.Subscriber(); err != nil {
				return fmt.Errorf("%w: hss.subscribers[%d]: %w", ErrInvalid, i, err)
			}
		}
	case "redis":
		if c.HSS.Redis.Addr == "" {
			return fmt.Errorf("%w: hss.redis.addr is empty", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: hss.backend %q", ErrInvalid, c.HSS.Backend)
	}
	return nil
}

// TCPAddr is the listen address of the tcp transport.
func (s S1AP) TCPAddr() string {
	return net.JoinHostPort(s.BindAddrs[0], fmt.Sprint(s.Port))
}
