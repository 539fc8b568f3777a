package advertising

import "github.com/rigado/btcore"

// Callbacks is the manager's client-facing callback surface (§4.6); each
// method is invoked at most once per logical operation, on the manager's
// own handler goroutine.
type Callbacks interface {
	OnSetStarted(regID uint16, id btcore.AdvertiserID, txPower int8, status btcore.StatusCode)
	OnEnabled(id btcore.AdvertiserID, enable bool, status btcore.StatusCode)
	OnDataSet(id btcore.AdvertiserID, status btcore.StatusCode)
	OnScanResponseSet(id btcore.AdvertiserID, status btcore.StatusCode)
	OnParamsUpdated(id btcore.AdvertiserID, status btcore.StatusCode)
	OnPeriodicParamsUpdated(id btcore.AdvertiserID, status btcore.StatusCode)
	OnPeriodicDataSet(id btcore.AdvertiserID, status btcore.StatusCode)
	OnPeriodicEnabled(id btcore.AdvertiserID, enable bool, status btcore.StatusCode)
	OnOwnAddressRead(id btcore.AdvertiserID, addr btcore.Address)
	// OnTimeout is the one-shot delivery for a locally-registered (§4.6,
	// reg_id == LocalRegistrationID) set terminated by LIMIT_REACHED or
	// ADVERTISING_TIMEOUT, in place of OnEnabled(false, status).
	OnTimeout(id btcore.AdvertiserID, status btcore.StatusCode)
}

// NopCallbacks is a Callbacks implementation that does nothing, useful
// when a caller only wants a subset wired (embed and override).
type NopCallbacks struct{}

func (NopCallbacks) OnSetStarted(uint16, btcore.AdvertiserID, int8, btcore.StatusCode)      {}
func (NopCallbacks) OnEnabled(btcore.AdvertiserID, bool, btcore.StatusCode)                 {}
func (NopCallbacks) OnDataSet(btcore.AdvertiserID, btcore.StatusCode)                       {}
func (NopCallbacks) OnScanResponseSet(btcore.AdvertiserID, btcore.StatusCode)               {}
func (NopCallbacks) OnParamsUpdated(btcore.AdvertiserID, btcore.StatusCode)                 {}
func (NopCallbacks) OnPeriodicParamsUpdated(btcore.AdvertiserID, btcore.StatusCode)         {}
func (NopCallbacks) OnPeriodicDataSet(btcore.AdvertiserID, btcore.StatusCode)               {}
func (NopCallbacks) OnPeriodicEnabled(btcore.AdvertiserID, bool, btcore.StatusCode)         {}
func (NopCallbacks) OnOwnAddressRead(btcore.AdvertiserID, btcore.Address)                   {}
func (NopCallbacks) OnTimeout(btcore.AdvertiserID, btcore.StatusCode)                       {}

// ScanCallbacks receives LE_Scan_Request_Received deliveries (§4.6
// "Scan-request-received").
type ScanCallbacks interface {
	OnScanRequestReceived(id btcore.AdvertiserID, scanner btcore.Address)
}
