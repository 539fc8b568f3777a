// Package pm implements the Classic Power Manager (C7-C9): a per-peer
// state machine that arbitrates low-power mode requests from multiple
// connected service profiles, schedules delayed transitions via per-peer
// timers, and reconciles controller mode-change notifications.
package pm

import "github.com/rigado/btcore"

// ServiceID names a profile/subsystem that can request a power mode for a
// peer (BTA_ID_* in the original). AppID disambiguates multiple client
// instances of the same service (e.g. two A2DP streams); AppIDAny matches
// any app_id when looking up a service's PM spec entry.
type ServiceID uint8
type AppID uint8

const AppIDAny AppID = 0xFF

const (
	ServiceAG  ServiceID = iota // audio gateway / HFP
	ServiceAV                  // A2DP
	ServiceHID                 // human interface device
	ServiceGATT
)

// ConnStatus is the connection-state notification a service reports for
// a peer (tBTA_SYS_CONN_STATUS).
type ConnStatus uint8

const (
	ConnOpen ConnStatus = iota
	ConnClose
	ConnIdle
	ConnBusy
	SCOOpen
	SCOClose
	numConnStatus
)

// Action is a power mode a service can request, in strictness order: a
// numerically larger action wins (§4.8 "a higher value wins").
type Action uint8

const (
	ActionNoAction Action = iota
	ActionPark
	ActionSniff
	ActionSuspend
)

// ActionNoPref is a pseudo-action appearing only in the static spec
// table: it means "this service doesn't care about this connection
// state", and its presence causes the service's table entry to be
// removed rather than considered in a set_mode pass (§4.7).
const ActionNoPref Action = 0xFF

func (a Action) String() string {
	switch a {
	case ActionNoAction:
		return "NO_ACTION"
	case ActionPark:
		return "PARK"
	case ActionSniff:
		return "SNIFF"
	case ActionSuspend:
		return "SUSPEND"
	case ActionNoPref:
		return "NO_PREF"
	default:
		return "UNKNOWN"
	}
}

// ActionMask is a bitmask of Actions, used for a service's "allow" set
// and for the set of actions preferred by some service in a set_mode
// pass.
type ActionMask uint8

func actionBit(a Action) ActionMask { return 1 << ActionMask(a) }

const (
	maskPark    = ActionMask(1) << ActionMask(ActionPark)
	maskSniff   = ActionMask(1) << ActionMask(ActionSniff)
	maskSuspend = ActionMask(1) << ActionMask(ActionSuspend)
)

// strictestIn returns the strictest (numerically largest) Action whose
// bit is set in mask, or ActionNoAction if mask is empty.
func strictestIn(mask ActionMask) Action {
	switch {
	case mask&maskSuspend != 0:
		return ActionSuspend
	case mask&maskSniff != 0:
		return ActionSniff
	case mask&maskPark != 0:
		return ActionPark
	default:
		return ActionNoAction
	}
}

// Kind distinguishes the three ways set_mode can be invoked (§4.9).
type Kind uint8

const (
	KindNew Kind = iota
	KindRestart
	KindExecute
)

// Peer is the per-device PM record (§3 "PM peer record"). info flags and
// the two failure/memory fields drive the controller-event reconciliation
// in §4.9.
type Peer struct {
	Addr             btcore.Address
	UseSSR           bool
	IntSniff         bool // we initiated the pending sniff ourselves
	AcpSniff         bool // remote accepted sniff on its own initiative
	SetSniff         bool // a SET_SNIFF command is currently outstanding
	PMModeAttempted  Action
	PMModeFailed     ActionMask
	PrevLow          PowerStatus // remembered low-power mode, for SSR re-issue on next ACTIVE
	CurrentMode      PowerStatus
}

// PowerStatus is the controller-reported power status in a
// pm_btm_status notification (tBTM_PM_STATUS).
type PowerStatus uint8

const (
	StatusActive PowerStatus = iota
	StatusPark
	StatusHold
	StatusSniff
	StatusSSR
	StatusError
)
