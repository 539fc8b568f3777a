package config

import (
	"os"
	"testing"
)

func TestApplyDefaults(t *testing.T) {
	c, err := Apply()
	if err != nil {
		t.Fatalf("Apply(): %v", err)
	}
	if c.LeTxPathLossCompDb != 0 {
		t.Fatalf("default LeTxPathLossCompDb = %d, want 0", c.LeTxPathLossCompDb)
	}
	if c.NRPANonConnectableAdv || c.DivideLongSingleGapData || c.BLECheckDataLengthOnLegacyAdvertising {
		t.Fatalf("default flags should all be false, got %+v", c)
	}
}

func TestWithLeTxPathLossCompDbRange(t *testing.T) {
	cases := []struct {
		db      int
		wantErr bool
	}{
		{db: 0, wantErr: false},
		{db: -128, wantErr: false},
		{db: 127, wantErr: false},
		{db: -129, wantErr: true},
		{db: 128, wantErr: true},
	}
	for _, tc := range cases {
		_, err := Apply(WithLeTxPathLossCompDb(tc.db))
		if (err != nil) != tc.wantErr {
			t.Errorf("db=%d: err = %v, wantErr %v", tc.db, err, tc.wantErr)
		}
	}
}

func TestWithSniffTable(t *testing.T) {
	table := SniffTable{
		MaxIntervals: []uint16{800, 400},
		MinIntervals: []uint16{400, 200},
		Attempts:     []uint16{4, 2},
		Timeouts:     []uint16{1, 1},
	}
	c, err := Apply(WithSniffTable(table))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(c.Sniff.MaxIntervals) != 2 || c.Sniff.MaxIntervals[0] != 800 {
		t.Fatalf("Sniff table not applied: %+v", c.Sniff)
	}
}

func TestFromEnv(t *testing.T) {
	for k, v := range map[string]string{
		envTxPathLossCompDb:      "-10",
		envSniffMaxIntervals:     "800,400",
		envSniffMinIntervals:     "400,200",
		envSniffAttempts:         "4",
		envSniffTimeouts:         "1",
		envNRPANonConnectableAdv: "true",
		envDivideLongGapData:     "1",
	} {
		t.Setenv(k, v)
	}
	os.Unsetenv(envCheckDataLenLegacy)

	c, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if c.LeTxPathLossCompDb != -10 {
		t.Fatalf("LeTxPathLossCompDb = %d, want -10", c.LeTxPathLossCompDb)
	}
	if len(c.Sniff.MaxIntervals) != 2 || c.Sniff.MaxIntervals[1] != 400 {
		t.Fatalf("Sniff.MaxIntervals = %v", c.Sniff.MaxIntervals)
	}
	if !c.NRPANonConnectableAdv {
		t.Fatalf("NRPANonConnectableAdv should be true")
	}
	if !c.DivideLongSingleGapData {
		t.Fatalf("DivideLongSingleGapData should be true")
	}
	if c.BLECheckDataLengthOnLegacyAdvertising {
		t.Fatalf("BLECheckDataLengthOnLegacyAdvertising should default false when unset")
	}
}

func TestFromEnvMalformedInt(t *testing.T) {
	t.Setenv(envTxPathLossCompDb, "not-a-number")
	if _, err := FromEnv(); err == nil {
		t.Fatalf("expected error for malformed %s", envTxPathLossCompDb)
	}
}
