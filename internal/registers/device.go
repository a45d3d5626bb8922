// internal/registers/device.go
package registers

import (
	"bytes"
	"fmt"
)

// DeviceFieldSize is the fixed width of one identification string.
const DeviceFieldSize = 16

// DeviceField is a zero-padded ASCII string of DeviceFieldSize bytes.
type DeviceField [DeviceFieldSize]byte

// NewDeviceField packs s, which must be printable ASCII of at most
// DeviceFieldSize characters.
func NewDeviceField(s string) (DeviceField, error) {
	var f DeviceField
	if len(s) > DeviceFieldSize {
		return f, fmt.Errorf("registers: %q longer than %d characters", s, DeviceFieldSize)
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7E {
			return f, fmt.Errorf("registers: %q is not printable ASCII", s)
		}
	}
	copy(f[:], s)
	return f, nil
}

func (f DeviceField) String() string {
	if i := bytes.IndexByte(f[:], 0); i >= 0 {
		return string(f[:i])
	}
	return string(f[:])
}

// DeviceInfo is the value of the Device register.
type DeviceInfo struct {
	Model    DeviceField
	Hardware DeviceField
	Software DeviceField
	Serial   DeviceField
}

// NewDeviceInfo packs the four identification strings.
func NewDeviceInfo(model, hardware, software, serial string) (DeviceInfo, error) {
	var d DeviceInfo
	for _, f := range []struct {
		dst *DeviceField
		s   string
	}{
		{&d.Model, model},
		{&d.Hardware, hardware},
		{&d.Software, software},
		{&d.Serial, serial},
	} {
		v, err := NewDeviceField(f.s)
		if err != nil {
			return DeviceInfo{}, err
		}
		*f.dst = v
	}
	return d, nil
}

func (d DeviceInfo) String() string {
	return fmt.Sprintf("%s hw %s sw %s serial %s", d.Model, d.Hardware, d.Software, d.Serial)
}
