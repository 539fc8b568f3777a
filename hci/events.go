package hci

import (
	"encoding/binary"
	"fmt"

	"github.com/rigado/btcore"
)

// AdvertisingSetTerminated is LE_Advertising_Set_Terminated (§4.7): the
// controller tore down a set on its own (duration/max-events expiry, or a
// connection formed from it).
type AdvertisingSetTerminated struct {
	Status            btcore.StatusCode
	AdvertisingHandle uint8
	ConnectionHandle  uint16
	NumCompletedEvents uint8
}

// ScanRequestReceived is LE_Scan_Request_Received (§4.7), forwarded to
// the advertising manager so its scan-request callback can fire.
type ScanRequestReceived struct {
	AdvertisingHandle uint8
	ScannerAddress    btcore.Address
}

// VendorSetStateChange is the vendor BLE_STCHANGE event for the
// AndroidVendor API: the controller changed a vendor instance's state on
// its own (e.g. terminated after a connection).
type VendorSetStateChange struct {
	Instance         uint8
	Reason           uint8
	ConnectionHandle uint16
}

// ModeChange is HCI Mode_Change: the link controller finished switching
// a connection's power mode (§5).
type ModeChange struct {
	Status           btcore.StatusCode
	ConnectionHandle uint16
	Mode             PowerMode
	Interval         uint16
}

// SniffSubrating is the vendor/Core Sniff_Subrating event acknowledging
// an SSR parameter change (§5).
type SniffSubrating struct {
	Status                   btcore.StatusCode
	ConnectionHandle         uint16
	MaxTxLatency             uint16
	MaxRxLatency             uint16
	MinRemoteTimeout         uint16
	MinLocalTimeout          uint16
}

// DecodeAdvertisingSetTerminated parses the LE Meta sub-event body.
func DecodeAdvertisingSetTerminated(b []byte) (AdvertisingSetTerminated, error) {
	if len(b) < 5 {
		return AdvertisingSetTerminated{}, fmt.Errorf("hci: short advertising-set-terminated event (%d bytes)", len(b))
	}
	return AdvertisingSetTerminated{
		Status:             btcore.StatusCode(b[0]),
		AdvertisingHandle:  b[1],
		ConnectionHandle:   binary.LittleEndian.Uint16(b[2:4]),
		NumCompletedEvents: b[4],
	}, nil
}

// DecodeModeChange parses a Mode_Change event body.
func DecodeModeChange(b []byte) (ModeChange, error) {
	if len(b) < 6 {
		return ModeChange{}, fmt.Errorf("hci: short mode-change event (%d bytes)", len(b))
	}
	return ModeChange{
		Status:           btcore.StatusCode(b[0]),
		ConnectionHandle: binary.LittleEndian.Uint16(b[1:3]),
		Mode:             PowerMode(b[3]),
		Interval:         binary.LittleEndian.Uint16(b[4:6]),
	}, nil
}

// DecodeSniffSubrating parses a Sniff_Subrating event body.
func DecodeSniffSubrating(b []byte) (SniffSubrating, error) {
	if len(b) < 11 {
		return SniffSubrating{}, fmt.Errorf("hci: short sniff-subrating event (%d bytes)", len(b))
	}
	return SniffSubrating{
		Status:           btcore.StatusCode(b[0]),
		ConnectionHandle: binary.LittleEndian.Uint16(b[1:3]),
		MaxTxLatency:     binary.LittleEndian.Uint16(b[3:5]),
		MaxRxLatency:     binary.LittleEndian.Uint16(b[5:7]),
		MinRemoteTimeout: binary.LittleEndian.Uint16(b[7:9]),
		MinLocalTimeout:  binary.LittleEndian.Uint16(b[9:11]),
	}, nil
}
