// internal/config/config.go
package config

import "github.com/tamzrod/uartcat/internal/logging"

// Config is one process: a master, a slave, or both.
type Config struct {
	Log    logging.Config `yaml:"log" toml:"log"`
	Master *MasterConfig  `yaml:"master" toml:"master"`
	Slave  *SlaveConfig   `yaml:"slave" toml:"slave"`
}

// ---- PORT ----

type PortConfig struct {
	Device    string `yaml:"device" toml:"device"` // /dev/ttyUSB0 or tcp://host:port
	Baud      int    `yaml:"baud" toml:"baud"`
	DataBits  int    `yaml:"data_bits" toml:"data_bits"`
	StopBits  int    `yaml:"stop_bits" toml:"stop_bits"`
	Parity    string `yaml:"parity" toml:"parity"` // N, E or O
	TimeoutMs int    `yaml:"timeout_ms" toml:"timeout_ms"`
}

// ---- MASTER ----

type MasterConfig struct {
	Port PortConfig `yaml:"port" toml:"port"`

	TimeoutMs    int `yaml:"timeout_ms" toml:"timeout_ms"` // one telegram round trip
	MaxTelegram  int `yaml:"max_telegram" toml:"max_telegram"`
	MaxDatagrams int `yaml:"max_datagrams" toml:"max_datagrams"`
	QueueDepth   int `yaml:"queue_depth" toml:"queue_depth"`

	// Enumerate reads the chain at startup and compares it with Topology.
	Enumerate bool `yaml:"enumerate" toml:"enumerate"`

	// Topology is the known chain, in order. Optional.
	Topology []TopologySlave `yaml:"topology" toml:"topology"`

	Units        []UnitConfig       `yaml:"units" toml:"units"`
	StatusMemory StatusMemoryConfig `yaml:"status_memory" toml:"status_memory"`
}

type TopologySlave struct {
	Station uint16         `yaml:"station" toml:"station"`
	Windows []WindowConfig `yaml:"windows" toml:"windows"`
}

// StatusMemoryConfig is where device status blocks are mirrored.
type StatusMemoryConfig struct {
	Endpoint string `yaml:"endpoint" toml:"endpoint"`
	UnitID   uint8  `yaml:"unit_id" toml:"unit_id"`
}

// ---- UNIT ----

type UnitConfig struct {
	ID      string         `yaml:"id" toml:"id"`
	Reads   []ReadConfig   `yaml:"reads" toml:"reads"`
	Targets []TargetConfig `yaml:"targets" toml:"targets"`
	Poll    PollConfig     `yaml:"poll" toml:"poll"`

	// Device status block (optional, opt-in)
	StatusSlot *uint16 `yaml:"status_slot" toml:"status_slot"`
	DeviceName string  `yaml:"device_name" toml:"device_name"`
}

// ---- READ GEOMETRY ----

type ReadConfig struct {
	Mode    string `yaml:"mode" toml:"mode"`       // fixed | positional | logical
	Slave   int    `yaml:"slave" toml:"slave"`     // station (fixed) or hop (positional)
	Address uint32 `yaml:"address" toml:"address"` // register offset, or logical address
	Length  uint16 `yaml:"length" toml:"length"`

	// Policy applies to logical reads: "any", "topology" or a slave count.
	Policy string `yaml:"policy" toml:"policy"`

	// Register is the first holding register of the mirror.
	Register uint16 `yaml:"register" toml:"register"`
}

// ---- TARGET ----

type TargetConfig struct {
	Endpoint string `yaml:"endpoint" toml:"endpoint"`
	UnitID   uint8  `yaml:"unit_id" toml:"unit_id"`
	Offset   uint16 `yaml:"offset" toml:"offset"` // added to every block register
}

// ---- POLL ----

type PollConfig struct {
	IntervalMs int `yaml:"interval_ms" toml:"interval_ms"`
	TimeoutMs  int `yaml:"timeout_ms" toml:"timeout_ms"`
}

// ---- SLAVE ----

type SlaveConfig struct {
	Upstream   PortConfig `yaml:"upstream" toml:"upstream"`
	Downstream PortConfig `yaml:"downstream" toml:"downstream"`

	Station uint16       `yaml:"station" toml:"station"`
	Buffer  int          `yaml:"buffer" toml:"buffer"`
	Device  DeviceConfig `yaml:"device" toml:"device"`

	Windows   []WindowConfig   `yaml:"windows" toml:"windows"`
	Registers []RegisterConfig `yaml:"registers" toml:"registers"`

	LockBudgetUs int `yaml:"lock_budget_us" toml:"lock_budget_us"`
	ReadChunk    int `yaml:"read_chunk" toml:"read_chunk"`
	MaxTelegram  int `yaml:"max_telegram" toml:"max_telegram"`
	MaxDatagrams int `yaml:"max_datagrams" toml:"max_datagrams"`
}

// DeviceConfig fills the read-only Device register.
// Each field is printable ASCII of at most 16 characters.
type DeviceConfig struct {
	Model    string `yaml:"model" toml:"model"`
	Hardware string `yaml:"hardware" toml:"hardware"`
	Software string `yaml:"software" toml:"software"`
	Serial   string `yaml:"serial" toml:"serial"`
}

type WindowConfig struct {
	Logical uint32 `yaml:"logical" toml:"logical"`
	Offset  uint16 `yaml:"offset" toml:"offset"`
	Length  uint16 `yaml:"length" toml:"length"`
	Access  string `yaml:"access" toml:"access"` // ro | wo | rw
}

// RegisterConfig declares one bus-visible register of a slave.
type RegisterConfig struct {
	Name   string `yaml:"name" toml:"name"`
	Offset uint16 `yaml:"offset" toml:"offset"`
	Width  int    `yaml:"width" toml:"width"`
	Access string `yaml:"access" toml:"access"`

	// Value is the initial content, big-endian. Widths up to 8 only.
	Value *uint64 `yaml:"value" toml:"value"`
}
