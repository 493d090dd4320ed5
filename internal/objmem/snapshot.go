package objmem

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/semver/v3"
)

// SnapshotFormatVersion is the AuditReport/compaction-report wire format's
// own version, independent of the module's release version — bump it only
// when a field is added, removed, or reinterpreted in a way a consumer
// parsing older snapshots needs to know about.
const SnapshotFormatVersion = "1.0.0"

// Snapshot is the serialized, versioned form of an AuditReport plus the
// running Statistics it was taken alongside, the shape the telemetry
// exporter streams.
type Snapshot struct {
	FormatVersion string      `json:"formatVersion"`
	TakenAt       string      `json:"takenAt"`
	Stats         Statistics  `json:"stats"`
	Report        AuditReport `json:"report"`
}

// TakeSnapshot runs an audit and packages it with the current statistics
// and the wire format's version, stamped with the caller-supplied time
// (Heap never calls time.Now() itself so a snapshot taken mid-test is
// reproducible).
func (h *Heap) TakeSnapshot(at time.Time) Snapshot {
	return Snapshot{
		FormatVersion: SnapshotFormatVersion,
		TakenAt:       at.UTC().Format(time.RFC3339Nano),
		Stats:         h.Stats(),
		Report:        h.Audit(),
	}
}

// MarshalJSON renders the AuditReport's error slice as strings — errors
// don't round-trip through JSON on their own, and a consumer only needs
// the message for display.
func (r AuditReport) MarshalJSON() ([]byte, error) {
	type wire struct {
		Scanned    int        `json:"scanned"`
		Mismatches []Mismatch `json:"mismatches"`
		Errors     []string   `json:"errors"`
	}

	w := wire{Scanned: r.Scanned, Mismatches: r.Mismatches}
	for _, e := range r.Errors {
		w.Errors = append(w.Errors, e.Error())
	}

	return json.Marshal(w)
}

// CompatibleWith reports whether snap's format version can be parsed by
// this build: same major version, and this build's minor.patch is at least
// snap's (forward-compatible readers tolerate fields added in a later
// minor release; they cannot safely interpret an unknown major bump).
func CompatibleWith(snap Snapshot) (bool, error) {
	have, err := semver.NewVersion(SnapshotFormatVersion)
	if err != nil {
		return false, fmt.Errorf("objmem: invalid built-in format version %q: %w", SnapshotFormatVersion, err)
	}

	got, err := semver.NewVersion(snap.FormatVersion)
	if err != nil {
		return false, fmt.Errorf("objmem: invalid snapshot format version %q: %w", snap.FormatVersion, err)
	}

	constraint, err := semver.NewConstraint(fmt.Sprintf("^%d", have.Major()))
	if err != nil {
		return false, err
	}

	return constraint.Check(got) && !got.GreaterThan(have), nil
}
