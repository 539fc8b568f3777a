package hci

// Opcodes for the command set §4.7 enumerates as "HCI commands the core
// emits". OGF/OCF split follows Core Spec Vol 4 Part E §5.4.1; vendor
// opcodes use the vendor-specific OGF (0x3F) the teacher's linux/hci
// package reserves for Android/Broadcom multi-advertising extensions.
const (
	ogfLEController     = 0x08
	ogfStatusParameters = 0x05
	ogfVendor           = 0x3F

	opLESetAdvertisingParameters   = ogfLEController<<10 | 0x0006
	opLESetAdvertisingData         = ogfLEController<<10 | 0x0008
	opLESetScanResponseData        = ogfLEController<<10 | 0x0009
	opLESetAdvertisingEnable       = ogfLEController<<10 | 0x000A
	opLESetRandomAddress           = ogfLEController<<10 | 0x0005
	opLERand                       = ogfLEController<<10 | 0x0018
	opLESetAdvertisingSetRandomAddr = ogfLEController<<10 | 0x0035
	opLESetExtAdvertisingParameters = ogfLEController<<10 | 0x0036
	opLESetExtAdvertisingData       = ogfLEController<<10 | 0x0037
	opLESetExtScanResponseData      = ogfLEController<<10 | 0x0038
	opLESetExtAdvertisingEnable     = ogfLEController<<10 | 0x0039
	opLERemoveAdvertisingSet        = ogfLEController<<10 | 0x003C
	opLESetPeriodicAdvertisingParameters = ogfLEController<<10 | 0x003E
	opLESetPeriodicAdvertisingData        = ogfLEController<<10 | 0x003F
	opLESetPeriodicAdvertisingEnable      = ogfLEController<<10 | 0x0040

	// Vendor multi-advertising (Android-vendor API type); sub-opcodes
	// travel in the first payload byte and in the matching vendor
	// completion event.
	opLEMultiAdvt = ogfVendor<<10 | 0x0156

	subMultiAdvtSetParam      = 0x00
	subMultiAdvtSetData       = 0x01
	subMultiAdvtSetScanResp   = 0x02
	subMultiAdvtSetRandomAddr = 0x03
	subMultiAdvtSetEnable     = 0x04

	opSetPowerMode    = ogfVendor<<10 | 0x0003
	opBTMSetSsrParams = ogfVendor<<10 | 0x0004

	// Event codes (§4.7 "HCI events the core consumes").
	evtCommandComplete             = 0x0E
	evtCommandStatus               = 0x0F
	evtLEMeta                      = 0x3E
	evtVendorSpecific              = 0xFF
	subLEAdvertisingSetTerminated  = 0x12
	subLEScanRequestReceived       = 0x13
	subVendorBLEStChange           = 0x54
	subVendorModeChange            = 0x55
	subVendorSniffSubrating        = 0x56
)
