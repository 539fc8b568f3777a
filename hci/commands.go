package hci

// Concrete command types for the subset of the HCI command set §4.7
// names. Each follows the same Marshal shape the teacher's linux/hci
// params.go commands use: a plain struct of the command's parameters,
// little-endian on the wire per Vol 4, Part E.

// LESetAdvertisingParameters is the legacy advertising-parameters command.
type LESetAdvertisingParameters struct {
	IntervalMin, IntervalMax uint16
	AdvertisingType          uint8
	OwnAddressType           uint8
	DirectAddressType        uint8
	DirectAddress            [6]byte
	ChannelMap               uint8
	FilterPolicy             uint8
}

func (c LESetAdvertisingParameters) OpCode() uint16  { return opLESetAdvertisingParameters }
func (c LESetAdvertisingParameters) SubOpCode() uint8 { return 0 }
func (c LESetAdvertisingParameters) Marshal() ([]byte, error) {
	b := make([]byte, 0, 15)
	b = appendU16(b, c.IntervalMin)
	b = appendU16(b, c.IntervalMax)
	b = append(b, c.AdvertisingType, c.OwnAddressType, c.DirectAddressType)
	b = append(b, c.DirectAddress[:]...)
	b = append(b, c.ChannelMap, c.FilterPolicy)
	return b, nil
}

// LESetAdvertisingData carries up to 31 bytes of legacy advertising data.
type LESetAdvertisingData struct {
	Data []byte
}

func (c LESetAdvertisingData) OpCode() uint16   { return opLESetAdvertisingData }
func (c LESetAdvertisingData) SubOpCode() uint8 { return 0 }
func (c LESetAdvertisingData) Marshal() ([]byte, error) {
	return fixedLenPayload(c.Data, 31), nil
}

// LESetScanResponseData carries up to 31 bytes of legacy scan response.
type LESetScanResponseData struct {
	Data []byte
}

func (c LESetScanResponseData) OpCode() uint16   { return opLESetScanResponseData }
func (c LESetScanResponseData) SubOpCode() uint8 { return 0 }
func (c LESetScanResponseData) Marshal() ([]byte, error) {
	return fixedLenPayload(c.Data, 31), nil
}

// LESetAdvertisingEnable enables or disables legacy advertising.
type LESetAdvertisingEnable struct {
	Enable bool
}

func (c LESetAdvertisingEnable) OpCode() uint16   { return opLESetAdvertisingEnable }
func (c LESetAdvertisingEnable) SubOpCode() uint8 { return 0 }
func (c LESetAdvertisingEnable) Marshal() ([]byte, error) {
	return []byte{boolByte(c.Enable)}, nil
}

// LESetRandomAddress sets the controller-wide (legacy-API) random address.
type LESetRandomAddress struct {
	Address [6]byte
}

func (c LESetRandomAddress) OpCode() uint16   { return opLESetRandomAddress }
func (c LESetRandomAddress) SubOpCode() uint8 { return 0 }
func (c LESetRandomAddress) Marshal() ([]byte, error) {
	return append([]byte{}, c.Address[:]...), nil
}

// LERand requests 8 bytes of controller-sourced randomness. The address
// policy module does not send it; it draws its prand from crypto/rand.
type LERand struct{}

func (c LERand) OpCode() uint16           { return opLERand }
func (c LERand) SubOpCode() uint8         { return 0 }
func (c LERand) Marshal() ([]byte, error) { return nil, nil }

// LESetAdvertisingSetRandomAddress sets the per-set random address
// (extended advertising API).
type LESetAdvertisingSetRandomAddress struct {
	AdvertisingHandle uint8
	Address           [6]byte
}

func (c LESetAdvertisingSetRandomAddress) OpCode() uint16   { return opLESetAdvertisingSetRandomAddr }
func (c LESetAdvertisingSetRandomAddress) SubOpCode() uint8 { return 0 }
func (c LESetAdvertisingSetRandomAddress) Marshal() ([]byte, error) {
	b := []byte{c.AdvertisingHandle}
	return append(b, c.Address[:]...), nil
}

// LESetExtAdvertisingParameters is the extended-advertising analogue of
// LESetAdvertisingParameters, keyed by advertising handle.
type LESetExtAdvertisingParameters struct {
	AdvertisingHandle        uint8
	EventProperties          uint16
	IntervalMin, IntervalMax uint32 // 3-byte fields on the wire
	ChannelMap               uint8
	OwnAddressType           uint8
	PeerAddressType          uint8
	PeerAddress              [6]byte
	FilterPolicy             uint8
	TxPower                  int8
	PrimaryPHY               uint8
	SecondaryMaxSkip         uint8
	SecondaryPHY             uint8
	SID                      uint8
	ScanRequestNotify        bool
}

func (c LESetExtAdvertisingParameters) OpCode() uint16   { return opLESetExtAdvertisingParameters }
func (c LESetExtAdvertisingParameters) SubOpCode() uint8 { return 0 }
func (c LESetExtAdvertisingParameters) Marshal() ([]byte, error) {
	b := make([]byte, 0, 25)
	b = append(b, c.AdvertisingHandle)
	b = appendU16(b, c.EventProperties)
	b = appendU24(b, c.IntervalMin)
	b = appendU24(b, c.IntervalMax)
	b = append(b, c.ChannelMap, c.OwnAddressType, c.PeerAddressType)
	b = append(b, c.PeerAddress[:]...)
	b = append(b, c.FilterPolicy, byte(c.TxPower), c.PrimaryPHY, c.SecondaryMaxSkip, c.SecondaryPHY, c.SID, boolByte(c.ScanRequestNotify))
	return b, nil
}

// LESetExtAdvertisingData is the fragmented extended-advertising-data
// write: Operation selects COMPLETE/FIRST/INTERMEDIATE/LAST (§4.4, §6).
type LESetExtAdvertisingData struct {
	AdvertisingHandle uint8
	Operation         uint8
	FragmentPreference uint8
	Data              []byte
}

func (c LESetExtAdvertisingData) OpCode() uint16   { return opLESetExtAdvertisingData }
func (c LESetExtAdvertisingData) SubOpCode() uint8 { return 0 }
func (c LESetExtAdvertisingData) Marshal() ([]byte, error) {
	b := []byte{c.AdvertisingHandle, c.Operation, c.FragmentPreference, byte(len(c.Data))}
	return append(b, c.Data...), nil
}

// LESetExtScanResponseData mirrors LESetExtAdvertisingData for scan
// response.
type LESetExtScanResponseData struct {
	AdvertisingHandle  uint8
	Operation          uint8
	FragmentPreference uint8
	Data               []byte
}

func (c LESetExtScanResponseData) OpCode() uint16   { return opLESetExtScanResponseData }
func (c LESetExtScanResponseData) SubOpCode() uint8 { return 0 }
func (c LESetExtScanResponseData) Marshal() ([]byte, error) {
	b := []byte{c.AdvertisingHandle, c.Operation, c.FragmentPreference, byte(len(c.Data))}
	return append(b, c.Data...), nil
}

// ExtAdvertisingEnableEntry is one set's row in LESetExtAdvertisingEnable.
type ExtAdvertisingEnableEntry struct {
	AdvertisingHandle uint8
	Duration          uint16 // 10ms units, 0 = no duration limit
	MaxExtendedEvents uint8
}

// LESetExtAdvertisingEnable enables or disables a list of extended
// advertising sets in one command.
type LESetExtAdvertisingEnable struct {
	Enable bool
	Sets   []ExtAdvertisingEnableEntry
}

func (c LESetExtAdvertisingEnable) OpCode() uint16   { return opLESetExtAdvertisingEnable }
func (c LESetExtAdvertisingEnable) SubOpCode() uint8 { return 0 }
func (c LESetExtAdvertisingEnable) Marshal() ([]byte, error) {
	b := []byte{boolByte(c.Enable), byte(len(c.Sets))}
	for _, s := range c.Sets {
		b = append(b, s.AdvertisingHandle)
		b = appendU16(b, s.Duration)
		b = append(b, s.MaxExtendedEvents)
	}
	return b, nil
}

// LERemoveAdvertisingSet deallocates an extended advertising set in the
// controller.
type LERemoveAdvertisingSet struct {
	AdvertisingHandle uint8
}

func (c LERemoveAdvertisingSet) OpCode() uint16   { return opLERemoveAdvertisingSet }
func (c LERemoveAdvertisingSet) SubOpCode() uint8 { return 0 }
func (c LERemoveAdvertisingSet) Marshal() ([]byte, error) {
	return []byte{c.AdvertisingHandle}, nil
}

// LESetPeriodicAdvertisingParameters configures periodic advertising
// interval for a set already created via LESetExtAdvertisingParameters.
type LESetPeriodicAdvertisingParameters struct {
	AdvertisingHandle        uint8
	IntervalMin, IntervalMax uint16
	Properties               uint16
}

func (c LESetPeriodicAdvertisingParameters) OpCode() uint16 {
	return opLESetPeriodicAdvertisingParameters
}
func (c LESetPeriodicAdvertisingParameters) SubOpCode() uint8 { return 0 }
func (c LESetPeriodicAdvertisingParameters) Marshal() ([]byte, error) {
	b := []byte{c.AdvertisingHandle}
	b = appendU16(b, c.IntervalMin)
	b = appendU16(b, c.IntervalMax)
	b = appendU16(b, c.Properties)
	return b, nil
}

// LESetPeriodicAdvertisingData is periodic advertising's fragmented data
// write (no FragmentPreference field; only COMPLETE/FIRST/INTERMEDIATE/LAST).
type LESetPeriodicAdvertisingData struct {
	AdvertisingHandle uint8
	Operation         uint8
	Data              []byte
}

func (c LESetPeriodicAdvertisingData) OpCode() uint16   { return opLESetPeriodicAdvertisingData }
func (c LESetPeriodicAdvertisingData) SubOpCode() uint8 { return 0 }
func (c LESetPeriodicAdvertisingData) Marshal() ([]byte, error) {
	b := []byte{c.AdvertisingHandle, c.Operation, byte(len(c.Data))}
	return append(b, c.Data...), nil
}

// LESetPeriodicAdvertisingEnable enables or disables periodic advertising
// for a single set.
type LESetPeriodicAdvertisingEnable struct {
	Enable            bool
	AdvertisingHandle uint8
}

func (c LESetPeriodicAdvertisingEnable) OpCode() uint16   { return opLESetPeriodicAdvertisingEnable }
func (c LESetPeriodicAdvertisingEnable) SubOpCode() uint8 { return 0 }
func (c LESetPeriodicAdvertisingEnable) Marshal() ([]byte, error) {
	return []byte{boolByte(c.Enable), c.AdvertisingHandle}, nil
}

// --- Vendor multi-advertising (AndroidVendor API type) ---

// MultiAdvtSetParam is the vendor equivalent of
// LESetAdvertisingParameters, addressed by a 1-based vendor instance id.
type MultiAdvtSetParam struct {
	IntervalMin, IntervalMax uint16
	AdvertisingType          uint8
	OwnAddressType           uint8
	DirectAddressType        uint8
	DirectAddress            [6]byte
	ChannelMap               uint8
	FilterPolicy             uint8
	TxPower                  int8
	Instance                 uint8
}

func (c MultiAdvtSetParam) OpCode() uint16   { return opLEMultiAdvt }
func (c MultiAdvtSetParam) SubOpCode() uint8 { return subMultiAdvtSetParam }
func (c MultiAdvtSetParam) Marshal() ([]byte, error) {
	b := []byte{subMultiAdvtSetParam}
	b = appendU16(b, c.IntervalMin)
	b = appendU16(b, c.IntervalMax)
	b = append(b, c.AdvertisingType, c.OwnAddressType, c.DirectAddressType)
	b = append(b, c.DirectAddress[:]...)
	b = append(b, c.ChannelMap, c.FilterPolicy, byte(c.TxPower), c.Instance)
	return b, nil
}

// MultiAdvtSetData is the vendor data write; unlike extended advertising
// it is not fragmented by the controller, so the codec's legacy-length
// gate applies (§6 ble_check_data_length_on_legacy_advertising).
type MultiAdvtSetData struct {
	Data     []byte
	Instance uint8
}

func (c MultiAdvtSetData) OpCode() uint16   { return opLEMultiAdvt }
func (c MultiAdvtSetData) SubOpCode() uint8 { return subMultiAdvtSetData }
func (c MultiAdvtSetData) Marshal() ([]byte, error) {
	b := []byte{subMultiAdvtSetData, byte(len(c.Data))}
	b = append(b, c.Data...)
	return append(b, c.Instance), nil
}

// MultiAdvtSetScanResp mirrors MultiAdvtSetData for scan response data.
type MultiAdvtSetScanResp struct {
	Data     []byte
	Instance uint8
}

func (c MultiAdvtSetScanResp) OpCode() uint16   { return opLEMultiAdvt }
func (c MultiAdvtSetScanResp) SubOpCode() uint8 { return subMultiAdvtSetScanResp }
func (c MultiAdvtSetScanResp) Marshal() ([]byte, error) {
	b := []byte{subMultiAdvtSetScanResp, byte(len(c.Data))}
	b = append(b, c.Data...)
	return append(b, c.Instance), nil
}

// MultiAdvtSetRandomAddr sets the vendor instance's random address.
type MultiAdvtSetRandomAddr struct {
	Address  [6]byte
	Instance uint8
}

func (c MultiAdvtSetRandomAddr) OpCode() uint16   { return opLEMultiAdvt }
func (c MultiAdvtSetRandomAddr) SubOpCode() uint8 { return subMultiAdvtSetRandomAddr }
func (c MultiAdvtSetRandomAddr) Marshal() ([]byte, error) {
	b := []byte{subMultiAdvtSetRandomAddr}
	b = append(b, c.Address[:]...)
	return append(b, c.Instance), nil
}

// MultiAdvtSetEnable enables or disables one vendor instance.
type MultiAdvtSetEnable struct {
	Enable   bool
	Instance uint8
}

func (c MultiAdvtSetEnable) OpCode() uint16   { return opLEMultiAdvt }
func (c MultiAdvtSetEnable) SubOpCode() uint8 { return subMultiAdvtSetEnable }
func (c MultiAdvtSetEnable) Marshal() ([]byte, error) {
	return []byte{subMultiAdvtSetEnable, boolByte(c.Enable), c.Instance}, nil
}

// --- Power manager commands (C9) ---

// PowerMode is the argument to SetPowerMode (§5 SNIFF/PARK/ACTIVE).
type PowerMode uint8

const (
	PowerModeActive PowerMode = 0
	PowerModeSniff  PowerMode = 2
	PowerModePark   PowerMode = 3
)

// SetPowerMode requests the link controller transition the connection to
// a classic peer into the given power mode. The BTM layer addresses
// connections by peer address rather than connection handle; the handle
// lookup is the transport's concern (§1 "out of scope").
type SetPowerMode struct {
	Peer        [6]byte
	Mode        PowerMode
	IntervalMin uint16
	IntervalMax uint16
	Attempt     uint16
	Timeout     uint16
}

func (c SetPowerMode) OpCode() uint16   { return opSetPowerMode }
func (c SetPowerMode) SubOpCode() uint8 { return 0 }
func (c SetPowerMode) Marshal() ([]byte, error) {
	b := make([]byte, 0, 15)
	b = append(b, c.Peer[:]...)
	b = append(b, byte(c.Mode))
	b = appendU16(b, c.IntervalMin)
	b = appendU16(b, c.IntervalMax)
	b = appendU16(b, c.Attempt)
	b = appendU16(b, c.Timeout)
	return b, nil
}

// BTMSetSsrParams configures sniff subrating for a classic peer (§5).
type BTMSetSsrParams struct {
	Peer             [6]byte
	MaxLatency       uint16
	MinRemoteTimeout uint16
	MinLocalTimeout  uint16
}

func (c BTMSetSsrParams) OpCode() uint16   { return opBTMSetSsrParams }
func (c BTMSetSsrParams) SubOpCode() uint8 { return 0 }
func (c BTMSetSsrParams) Marshal() ([]byte, error) {
	b := make([]byte, 0, 12)
	b = append(b, c.Peer[:]...)
	b = appendU16(b, c.MaxLatency)
	b = appendU16(b, c.MinRemoteTimeout)
	b = appendU16(b, c.MinLocalTimeout)
	return b, nil
}

func appendU16(b []byte, v uint16) []byte {
	return append(b, byte(v), byte(v>>8))
}

func appendU24(b []byte, v uint32) []byte {
	return append(b, byte(v), byte(v>>8), byte(v>>16))
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

// fixedLenPayload pads or truncates data into the controller's
// fixed-length legacy data field (always `max` bytes, prefixed by the
// actual length).
func fixedLenPayload(data []byte, max int) []byte {
	b := make([]byte, 1+max)
	b[0] = byte(len(data))
	copy(b[1:], data)
	return b
}
