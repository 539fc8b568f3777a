package btcore

// AdvertiserAddressType is the address kind an advertising set was asked
// to use, before address-policy narrowing (§3, §4.2).
type AdvertiserAddressType uint8

const (
	AdvertiserAddressPublic AdvertiserAddressType = iota
	AdvertiserAddressResolvableRandom
	AdvertiserAddressNonResolvableRandom
)

func (t AdvertiserAddressType) String() string {
	switch t {
	case AdvertiserAddressResolvableRandom:
		return "resolvable-random"
	case AdvertiserAddressNonResolvableRandom:
		return "non-resolvable-random"
	default:
		return "public"
	}
}

// AddressPolicy is the host-wide privacy posture consulted by the address
// policy module (§4.2).
type AddressPolicy uint8

const (
	AddressPolicyPublicOnly AddressPolicy = iota
	AddressPolicyStaticOnly
	AddressPolicyRPA
	AddressPolicyNRPA
)

// ApiType selects which HCI command family the advertising manager speaks,
// chosen once at start based on controller capability (§3 "Advertising API
// type").
type ApiType uint8

const (
	ApiLegacy ApiType = iota
	ApiAndroidVendor
	ApiExtended
)

// AdvertiserID identifies one advertising set, in [0, num_instances) for
// Legacy/Extended, [1, num_instances] for AndroidVendor (§4.5).
type AdvertiserID uint8

// LocalRegistrationID marks an advertiser registered locally rather than by
// a remote (e.g. Java/app-layer) client; see original_source
// le_advertising_manager.cc's kIdLocal.
const LocalRegistrationID = 0xff

// StatusCode is the result surfaced on advertising callbacks (§7).
type StatusCode uint8

const (
	StatusSuccess StatusCode = iota
	StatusTooManyAdvertisers
	StatusDataTooLarge
	StatusInternalError
	StatusFeatureUnsupported
	StatusAdvertisingTimeout
	StatusLimitReached
)

func (s StatusCode) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusTooManyAdvertisers:
		return "TOO_MANY_ADVERTISERS"
	case StatusDataTooLarge:
		return "DATA_TOO_LARGE"
	case StatusInternalError:
		return "INTERNAL_ERROR"
	case StatusFeatureUnsupported:
		return "FEATURE_UNSUPPORTED"
	case StatusAdvertisingTimeout:
		return "ADVERTISING_TIMEOUT"
	case StatusLimitReached:
		return "LIMIT_REACHED"
	default:
		return "UNKNOWN"
	}
}
