package partition

import "time"

// dsLayout is the date stamp used in partition prefixes, e.g. "2025-01-01".
const dsLayout = "2006-01-02"

// DS formats t as the run-date stamp used in object keys. Partitions are
// laid out in UTC regardless of the host timezone.
func DS(t time.Time) string {
	return t.UTC().Format(dsLayout)
}

// ParseDS parses a run-date stamp back into a UTC time.
func ParseDS(ds string) (time.Time, error) {
	return time.Parse(dsLayout, ds)
}

// Prefix returns the object-key prefix for one truck's daily partition,
// "{truckID}/{ds}/". Every telemetry object for that truck and day lives
// under this prefix.
func Prefix(truckID string, t time.Time) string {
	return truckID + "/" + DS(t) + "/"
}
