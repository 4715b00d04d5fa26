package types

import "strings"

// DeviceIdentity is a device record in the cloud identity directory.
// The engine never mutates these locally; extension attribute changes
// are relayed through the cloud directory client.
type DeviceIdentity struct {
	ID                  string            `json:"id"`
	DisplayName         string            `json:"display_name"`
	DeviceID            string            `json:"device_id"` // source-system device identifier
	ExtensionAttributes map[string]string `json:"extension_attributes,omitempty"`
}

// ExtensionAttribute returns the current value of the named extension
// attribute, matching the name case-insensitively.
func (d DeviceIdentity) ExtensionAttribute(name string) string {
	for k, v := range d.ExtensionAttributes {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// DevicePage is one page of a device enumeration.
type DevicePage struct {
	Devices       []DeviceIdentity `json:"devices"`
	NextPageToken string           `json:"next_page_token,omitempty"`
}

// ManagedDevice is a device record in the endpoint-management service.
type ManagedDevice struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ExternalID   string `json:"external_id"`
	SerialNumber string `json:"serial_number,omitempty"`
	Manufacturer string `json:"manufacturer,omitempty"`
	Model        string `json:"model,omitempty"`
	OSVersion    string `json:"os_version,omitempty"`
	OSName       string `json:"os_name,omitempty"`
	UserName     string `json:"user_name,omitempty"`
	WiFiMAC      string `json:"wifi_mac,omitempty"`
	Ownership    string `json:"ownership,omitempty"`
	Compliance   string `json:"compliance,omitempty"`
}
