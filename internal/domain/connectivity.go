package domain

// ConnectionType classifies the active network link.
type ConnectionType string

const (
	ConnectionWifi     ConnectionType = "wifi"
	ConnectionCellular ConnectionType = "cellular"
	ConnectionEthernet ConnectionType = "ethernet"
	ConnectionNone     ConnectionType = "none"
	ConnectionUnknown  ConnectionType = "unknown"
)

// NetworkStatus is one reading from the platform network layer.
type NetworkStatus struct {
	Connected         bool
	InternetReachable bool
	Type              ConnectionType
}

// Online reports whether a fetch should be attempted.
func (s NetworkStatus) Online() bool {
	return s.Connected && s.InternetReachable
}

// ConnectivityState is the monitor's snapshot plus the user's preference.
type ConnectivityState struct {
	IsConnected        bool
	ConnectionType     ConnectionType
	UserAllowsCellular bool
}

// CanProceed applies the media policy: wifi always, cellular only when the
// user allows it, anything else falls back to the raw connected flag.
func (s ConnectivityState) CanProceed() bool {
	if !s.IsConnected {
		return false
	}
	switch s.ConnectionType {
	case ConnectionWifi:
		return true
	case ConnectionCellular:
		return s.UserAllowsCellular
	default:
		return true
	}
}
