// Package bootcmd implements the bootloader command codec: typed commands
// and their arguments packed as a sequence of MessagePack objects, and
// decoders for the command-specific answer shapes the firmware replies
// with.
package bootcmd

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Version is the command-set version this driver speaks. It is unrelated
// to the datagram layer's own version byte.
const Version uint8 = 2

// Code identifies a bootloader command.
type Code uint8

// Defined command codes, per the bootloader protocol.
const (
	JumpToMain   Code = 1
	CRCRegion    Code = 2
	Erase        Code = 3
	Write        Code = 4
	Ping         Code = 5
	Read         Code = 6
	UpdateConfig Code = 7
	SaveConfig   Code = 8
	ReadConfig   Code = 9
)

// Reserved config keys with system-wide meaning.
const (
	ConfigKeyApplicationSize = "application_size"
	ConfigKeyApplicationCRC  = "application_crc"
	ConfigKeyNodeID          = "ID"
)

// encode packs version, code and the argument array as three concatenated
// MessagePack objects.
func encode(code Code, args ...any) ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := msgpack.NewEncoder(buf)
	enc.UseArrayEncodedStructs(true)
	if err := enc.EncodeUint8(Version); err != nil {
		return nil, fmt.Errorf("bootcmd: encode version: %w", err)
	}
	if err := enc.EncodeUint8(uint8(code)); err != nil {
		return nil, fmt.Errorf("bootcmd: encode code: %w", err)
	}
	if args == nil {
		args = []any{}
	}
	if err := enc.Encode(args); err != nil {
		return nil, fmt.Errorf("bootcmd: encode arguments: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeJumpToMain requests the node abandon the bootloader and start the
// flashed application.
func EncodeJumpToMain() ([]byte, error) {
	return encode(JumpToMain)
}

// EncodeCRCRegion requests the CRC-32 of length bytes starting at address.
func EncodeCRCRegion(address, length uint32) ([]byte, error) {
	return encode(CRCRegion, address, length)
}

// EncodeErase requests erasure of the flash page at address for the given
// device class.
func EncodeErase(address uint32, deviceClass string) ([]byte, error) {
	return encode(Erase, address, deviceClass)
}

// EncodeWrite requests payload be written at address for the given device
// class. payload is packed with MessagePack's binary marker, distinct from
// the text-string marker used for deviceClass.
func EncodeWrite(address uint32, deviceClass string, payload []byte) ([]byte, error) {
	return encode(Write, address, deviceClass, payload)
}

// EncodePing requests a liveness reply; any answer counts as pong.
func EncodePing() ([]byte, error) {
	return encode(Ping)
}

// EncodeRead requests length bytes starting at address be read back.
func EncodeRead(address, length uint32) ([]byte, error) {
	return encode(Read, address, length)
}

// EncodeUpdateConfig requests the given key/value pairs be merged into the
// node's in-memory config. Keys not present are left unchanged.
func EncodeUpdateConfig(config map[string]any) ([]byte, error) {
	return encode(UpdateConfig, config)
}

// EncodeSaveConfig requests the current in-memory config be persisted.
func EncodeSaveConfig() ([]byte, error) {
	return encode(SaveConfig)
}

// EncodeReadConfig requests the node's entire config map.
func EncodeReadConfig() ([]byte, error) {
	return encode(ReadConfig)
}

// DecodeBool decodes a single boolean answer, as returned by Erase, Write
// and UpdateConfig.
func DecodeBool(raw []byte) (bool, error) {
	var v bool
	if err := msgpack.Unmarshal(raw, &v); err != nil {
		return false, fmt.Errorf("bootcmd: decode bool answer: %w", err)
	}
	return v, nil
}

// DecodeUint32 decodes a single integer answer, as returned by CRCRegion.
func DecodeUint32(raw []byte) (uint32, error) {
	var v uint32
	if err := msgpack.Unmarshal(raw, &v); err != nil {
		return 0, fmt.Errorf("bootcmd: decode uint32 answer: %w", err)
	}
	return v, nil
}

// DecodeBytes decodes a binary answer, as returned by Read.
func DecodeBytes(raw []byte) ([]byte, error) {
	var v []byte
	if err := msgpack.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("bootcmd: decode bytes answer: %w", err)
	}
	return v, nil
}

// DecodeConfig decodes a config map answer, as returned by ReadConfig.
func DecodeConfig(raw []byte) (map[string]any, error) {
	var v map[string]any
	if err := msgpack.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("bootcmd: decode config answer: %w", err)
	}
	return v, nil
}

// DecodeCommand parses a command back into its version, code and raw
// argument array. Used by tests asserting exact wire shape; the host side
// only ever encodes commands, never decodes them.
func DecodeCommand(raw []byte) (version uint8, code Code, args []any, err error) {
	dec := msgpack.NewDecoder(bytes.NewReader(raw))
	if version, err = dec.DecodeUint8(); err != nil {
		return 0, 0, nil, fmt.Errorf("bootcmd: decode version: %w", err)
	}
	rawCode, err := dec.DecodeUint8()
	if err != nil {
		return 0, 0, nil, fmt.Errorf("bootcmd: decode code: %w", err)
	}
	code = Code(rawCode)
	if err := dec.Decode(&args); err != nil {
		return 0, 0, nil, fmt.Errorf("bootcmd: decode arguments: %w", err)
	}
	return version, code, args, nil
}
