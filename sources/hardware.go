package sources

import (
	"strings"

	"github.com/attrsync/attrsync/types"
)

// managedDeviceFields maps lower-cased source attribute names to field
// accessors on a managed-device record. Built once; replaces dynamic
// property lookup by name.
var managedDeviceFields = map[string]func(*types.ManagedDevice) string{
	"id":                     func(d *types.ManagedDevice) string { return d.ID },
	"name":                   func(d *types.ManagedDevice) string { return d.Name },
	"devicename":             func(d *types.ManagedDevice) string { return d.Name },
	"externalid":             func(d *types.ManagedDevice) string { return d.ExternalID },
	"serialnumber":           func(d *types.ManagedDevice) string { return d.SerialNumber },
	"manufacturer":           func(d *types.ManagedDevice) string { return d.Manufacturer },
	"model":                  func(d *types.ManagedDevice) string { return d.Model },
	"osversion":              func(d *types.ManagedDevice) string { return d.OSVersion },
	"operatingsystemversion": func(d *types.ManagedDevice) string { return d.OSVersion },
	"osname":                 func(d *types.ManagedDevice) string { return d.OSName },
	"operatingsystem":        func(d *types.ManagedDevice) string { return d.OSName },
	"username":               func(d *types.ManagedDevice) string { return d.UserName },
	"wifimac":                func(d *types.ManagedDevice) string { return d.WiFiMAC },
	"wifimacaddress":         func(d *types.ManagedDevice) string { return d.WiFiMAC },
	"ownership":              func(d *types.ManagedDevice) string { return d.Ownership },
	"compliance":             func(d *types.ManagedDevice) string { return d.Compliance },
	"compliancestate":        func(d *types.ManagedDevice) string { return d.Compliance },
}

// ManagedDeviceField returns the value of the named field on a
// managed-device record. The name is matched case-insensitively. The
// second return reports whether the name is a known field.
func ManagedDeviceField(d *types.ManagedDevice, name string) (string, bool) {
	accessor, ok := managedDeviceFields[strings.ToLower(name)]
	if !ok {
		return "", false
	}
	return accessor(d), true
}
