// Package config holds the host-tunable options named in §6: the tx-power
// path-loss compensation override, the four SNIFF power-mode table
// overrides, and three runtime feature flags. Grounded on the teacher's
// functional-options pattern (rigado-ble's option.go, Option func(DeviceOption)
// error) adapted to a plain settable struct, since the teacher has no
// config-file system of its own to imitate more literally — here, options
// are applied directly to the struct rather than threaded through an
// interface, because unlike the teacher's device object, Config has no
// internal state to protect behind setter methods.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// SniffTable holds one override list per §6
// "bluetooth.core.classic.sniff_{max_intervals,min_intervals,attempts,timeouts}"
// entry. pm.SniffParamsFromLists reads only entry 0 of each list to build
// the single global SNIFF parameter set.
type SniffTable struct {
	MaxIntervals []uint16
	MinIntervals []uint16
	Attempts     []uint16
	Timeouts     []uint16
}

// Config is the recognized option set of §6.
type Config struct {
	// LeTxPathLossCompDb is added to requested tx power, clipped to
	// [-127, 20] by the advertising manager.
	LeTxPathLossCompDb int

	Sniff SniffTable

	// NRPANonConnectableAdv: when set, non-connectable advertisements
	// under a Public/Static address policy use NRPA instead of Public.
	NRPANonConnectableAdv bool
	// DivideLongSingleGapData: when set, a GAP element may exceed the
	// single-fragment limit; the codec splits across fragments by raw
	// byte count rather than rejecting it.
	DivideLongSingleGapData bool
	// BLECheckDataLengthOnLegacyAdvertising: when set, legacy-PDU
	// advertising data is additionally capped at the legacy 31-byte
	// limit.
	BLECheckDataLengthOnLegacyAdvertising bool
}

// Option configures a Config, following the teacher's Option func shape.
type Option func(*Config) error

// Apply runs every opt against a fresh default Config.
func Apply(opts ...Option) (Config, error) {
	var c Config
	for _, opt := range opts {
		if err := opt(&c); err != nil {
			return Config{}, err
		}
	}
	return c, nil
}

// WithLeTxPathLossCompDb sets bluetooth.hardware.radio.le_tx_path_loss_comp_db.
func WithLeTxPathLossCompDb(db int) Option {
	return func(c *Config) error {
		if db < -128 || db > 127 {
			return errors.Errorf("config: le_tx_path_loss_comp_db %d out of range [-128, 127]", db)
		}
		c.LeTxPathLossCompDb = db
		return nil
	}
}

// WithSniffTable overrides the built-in SNIFF power-mode table.
func WithSniffTable(t SniffTable) Option {
	return func(c *Config) error {
		c.Sniff = t
		return nil
	}
}

// WithNRPANonConnectableAdv sets the nrpa_non_connectable_adv flag.
func WithNRPANonConnectableAdv(v bool) Option {
	return func(c *Config) error { c.NRPANonConnectableAdv = v; return nil }
}

// WithDivideLongSingleGapData sets the divide_long_single_gap_data flag.
func WithDivideLongSingleGapData(v bool) Option {
	return func(c *Config) error { c.DivideLongSingleGapData = v; return nil }
}

// WithBLECheckDataLengthOnLegacyAdvertising sets the
// ble_check_data_length_on_legacy_advertising flag.
func WithBLECheckDataLengthOnLegacyAdvertising(v bool) Option {
	return func(c *Config) error { c.BLECheckDataLengthOnLegacyAdvertising = v; return nil }
}

const (
	envTxPathLossCompDb      = "BLUETOOTH_HARDWARE_RADIO_LE_TX_PATH_LOSS_COMP_DB"
	envSniffMaxIntervals     = "BLUETOOTH_CORE_CLASSIC_SNIFF_MAX_INTERVALS"
	envSniffMinIntervals     = "BLUETOOTH_CORE_CLASSIC_SNIFF_MIN_INTERVALS"
	envSniffAttempts         = "BLUETOOTH_CORE_CLASSIC_SNIFF_ATTEMPTS"
	envSniffTimeouts         = "BLUETOOTH_CORE_CLASSIC_SNIFF_TIMEOUTS"
	envNRPANonConnectableAdv = "BLUETOOTH_NRPA_NON_CONNECTABLE_ADV"
	envDivideLongGapData     = "BLUETOOTH_DIVIDE_LONG_SINGLE_GAP_DATA"
	envCheckDataLenLegacy    = "BLUETOOTH_BLE_CHECK_DATA_LENGTH_ON_LEGACY_ADVERTISING"
)

// FromEnv builds a Config by reading the recognized options from the
// process environment, falling back to zero values (no overrides, flags
// unset) when a variable is absent.
func FromEnv() (Config, error) {
	var opts []Option

	if v, ok := os.LookupEnv(envTxPathLossCompDb); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, errors.Wrapf(err, "config: %s", envTxPathLossCompDb)
		}
		opts = append(opts, WithLeTxPathLossCompDb(n))
	}

	table := SniffTable{}
	var err error
	if table.MaxIntervals, err = intListEnv(envSniffMaxIntervals); err != nil {
		return Config{}, err
	}
	if table.MinIntervals, err = intListEnv(envSniffMinIntervals); err != nil {
		return Config{}, err
	}
	if table.Attempts, err = intListEnv(envSniffAttempts); err != nil {
		return Config{}, err
	}
	if table.Timeouts, err = intListEnv(envSniffTimeouts); err != nil {
		return Config{}, err
	}
	opts = append(opts, WithSniffTable(table))

	opts = append(opts, WithNRPANonConnectableAdv(boolEnv(envNRPANonConnectableAdv)))
	opts = append(opts, WithDivideLongSingleGapData(boolEnv(envDivideLongGapData)))
	opts = append(opts, WithBLECheckDataLengthOnLegacyAdvertising(boolEnv(envCheckDataLenLegacy)))

	return Apply(opts...)
}

func boolEnv(name string) bool {
	v, ok := os.LookupEnv(name)
	if !ok {
		return false
	}
	b, _ := strconv.ParseBool(v)
	return b
}

func intListEnv(name string) ([]uint16, error) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return nil, nil
	}
	parts := strings.Split(v, ",")
	out := make([]uint16, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseUint(strings.TrimSpace(p), 10, 16)
		if err != nil {
			return nil, errors.Wrapf(err, "config: %s entry %q", name, p)
		}
		out = append(out, uint16(n))
	}
	return out, nil
}
