package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"merkledrop/crypto"
	"merkledrop/native/distributor"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings. A bare integer is
// read as seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	var seconds int64
	if err := value.Decode(&seconds); err == nil {
		d.Duration = time.Duration(seconds) * time.Second
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Manifest describes the distributor parameters that do not come from the
// airdrop tree file. The schedule is given either as absolute unix seconds
// or as a start time plus durations; absolute values win when both are set.
type Manifest struct {
	Version          uint64    `yaml:"version"`
	Mint             string    `yaml:"mint"`
	Admin            string    `yaml:"admin"`
	ClawbackReceiver string    `yaml:"clawback_receiver"`
	StartTs          int64     `yaml:"start_ts"`
	EndTs            int64     `yaml:"end_ts"`
	ClawbackStartTs  int64     `yaml:"clawback_start_ts"`
	StartTime        time.Time `yaml:"start_time"`
	VestingDuration  Duration  `yaml:"vesting_duration"`
	ClawbackDelay    Duration  `yaml:"clawback_delay"`
}

var errManifestSchedule = errors.New("manifest: schedule requires start_ts/end_ts/clawback_start_ts or start_time")

// LoadManifest reads a YAML distributor manifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseManifest(data)
}

// ParseManifest decodes a YAML distributor manifest.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}
	return &m, nil
}

// Schedule resolves the vesting window and clawback start in unix seconds.
// A missing clawback delay defaults to the minimum of one day.
func (m *Manifest) Schedule() (start, end, clawback int64, err error) {
	if m.StartTs != 0 || m.EndTs != 0 || m.ClawbackStartTs != 0 {
		return m.StartTs, m.EndTs, m.ClawbackStartTs, nil
	}
	if m.StartTime.IsZero() {
		return 0, 0, 0, errManifestSchedule
	}
	start = m.StartTime.Unix()
	end = m.StartTime.Add(m.VestingDuration.Duration).Unix()
	delay := m.ClawbackDelay.Duration
	if delay == 0 {
		delay = time.Duration(distributor.MinClawbackDelay) * time.Second
	}
	clawback = m.StartTime.Add(m.VestingDuration.Duration + delay).Unix()
	return start, end, clawback, nil
}

// CreateParams combines the manifest with the tree commitment. Admin and
// clawback receiver default to fallback, typically the signing key.
func (m *Manifest) CreateParams(root [32]byte, hasher string, maxTotalClaim, maxNumNodes uint64, fallback [20]byte) (distributor.CreateParams, error) {
	start, end, clawback, err := m.Schedule()
	if err != nil {
		return distributor.CreateParams{}, err
	}
	mint, err := parseRequiredAddress("mint", m.Mint)
	if err != nil {
		return distributor.CreateParams{}, err
	}
	admin, err := parseOptionalAddress("admin", m.Admin, fallback)
	if err != nil {
		return distributor.CreateParams{}, err
	}
	receiver, err := parseOptionalAddress("clawback_receiver", m.ClawbackReceiver, fallback)
	if err != nil {
		return distributor.CreateParams{}, err
	}
	return distributor.CreateParams{
		Version:          m.Version,
		Root:             root,
		Hasher:           hasher,
		Mint:             mint,
		MaxTotalClaim:    maxTotalClaim,
		MaxNumNodes:      maxNumNodes,
		StartTs:          start,
		EndTs:            end,
		ClawbackStartTs:  clawback,
		ClawbackReceiver: receiver,
		Admin:            admin,
	}, nil
}

func parseRequiredAddress(field, value string) ([20]byte, error) {
	if value == "" {
		return [20]byte{}, fmt.Errorf("manifest: %s is required", field)
	}
	addr, err := crypto.ParseAddress(value)
	if err != nil {
		return [20]byte{}, fmt.Errorf("manifest: %s: %w", field, err)
	}
	return addr.Raw(), nil
}

func parseOptionalAddress(field, value string, fallback [20]byte) ([20]byte, error) {
	if value == "" {
		return fallback, nil
	}
	return parseRequiredAddress(field, value)
}
