package pm

import "time"

// ActionSpec is one entry of a service's per-connection-state action
// table (tBTA_DM_PM_ACTN): the action to propose and, if a timer is
// needed, the delay before executing it.
type ActionSpec struct {
	Action  Action
	Timeout time.Duration
}

// ServiceSpec is the static PM configuration for one (ServiceID, AppID)
// pair (tBTA_DM_PM_CFG + tBTA_DM_PM_SPEC): an allow-mask of modes the
// service tolerates, an action table indexed by ConnStatus, and the SSR
// table index to use while connected.
type ServiceSpec struct {
	ID        ServiceID
	AppID     AppID // AppIDAny matches any app_id
	AllowMask ActionMask
	Actions   [numConnStatus]ActionSpec
	SSRIndex  int
}

// SSRSpec is one entry of the sniff-subrating parameter table
// (tBTA_DM_SSR_SPEC), selected by index.
type SSRSpec struct {
	Name             string
	MaxLatency       uint16
	MinRemoteTimeout uint16
	MinLocalTimeout  uint16
}

// SSRIndexZero is "no sniff-subrating" (BTA_DM_PM_SSR0): issuing it with
// MaxLatency == 0 is a no-op per §4.9's SSR selection rule.
const SSRIndexZero = 0

// SSRIndexHID is reserved for HID's per-connection SSR preference,
// queried live rather than read from the static table (§4.9 "for HID,
// use its per-connection preference via the HID query interface").
const SSRIndexHID = 1

// SSRIndexA2DPBusy is forced for A2DP while a stream is active
// (§4.9 "on SYS_CONN_BUSY force SSR4").
const SSRIndexA2DPBusy = 4

// DefaultSSRTable is a representative sniff-subrating table; hosts
// override entries via Manager.SetSSRTable. The
// bluetooth.core.classic.sniff_* lists do not feed this table; they set
// the base SNIFF parameters through SniffParamsFromLists.
var DefaultSSRTable = [8]SSRSpec{
	{Name: "SSR0"},
	{Name: "SSR_HH", MaxLatency: 800, MinRemoteTimeout: 160, MinLocalTimeout: 160},
	{Name: "SSR2", MaxLatency: 400, MinRemoteTimeout: 80, MinLocalTimeout: 80},
	{Name: "SSR3", MaxLatency: 160, MinRemoteTimeout: 40, MinLocalTimeout: 40},
	{Name: "SSR4", MaxLatency: 80, MinRemoteTimeout: 20, MinLocalTimeout: 20},
	{Name: "SSR5"},
	{Name: "SSR6"},
	{Name: "SSR7"},
}

// DefaultServiceSpecs is a representative configuration covering the
// services the spec names explicitly (A2DP, HFP/audio-gateway, HID).
// Hosts register their own via Manager.RegisterServiceSpec; these act as
// sane defaults so the state machine is usable out of the box.
var DefaultServiceSpecs = []ServiceSpec{
	{
		ID:        ServiceAG,
		AppID:     AppIDAny,
		AllowMask: maskSniff | maskPark,
		SSRIndex:  SSRIndexZero,
		Actions: [numConnStatus]ActionSpec{
			ConnOpen:  {Action: ActionNoAction},
			ConnClose: {Action: ActionNoPref},
			ConnIdle:  {Action: ActionSniff, Timeout: 7 * time.Second},
			ConnBusy:  {Action: ActionNoAction},
			SCOOpen:   {Action: ActionNoAction},
			SCOClose:  {Action: ActionSniff, Timeout: 7 * time.Second},
		},
	},
	{
		ID:        ServiceAV,
		AppID:     AppIDAny,
		AllowMask: maskSniff | maskPark,
		SSRIndex:  SSRIndexZero,
		Actions: [numConnStatus]ActionSpec{
			ConnOpen:  {Action: ActionNoAction},
			ConnClose: {Action: ActionNoPref},
			ConnIdle:  {Action: ActionSniff, Timeout: 5 * time.Second},
			ConnBusy:  {Action: ActionSniff, Timeout: 5 * time.Second},
		},
	},
	{
		ID:        ServiceHID,
		AppID:     AppIDAny,
		AllowMask: maskSniff,
		SSRIndex:  SSRIndexHID,
		Actions: [numConnStatus]ActionSpec{
			ConnOpen:  {Action: ActionNoAction},
			ConnClose: {Action: ActionNoPref},
			ConnIdle:  {Action: ActionSniff, Timeout: 3 * time.Second},
			ConnBusy:  {Action: ActionNoAction},
		},
	},
}
