package domain

// DeviceInfo is the coarse classification of the client environment, parsed
// once at connect time from the client-supplied identifier string.
type DeviceInfo struct {
	Device  string `json:"device"`
	Browser string `json:"browser"`
	OS      string `json:"os"`
}
