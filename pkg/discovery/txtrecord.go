package discovery

import (
	"fmt"
	"strings"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeRelayTXT creates TXT records for a relay advertisement.
func EncodeRelayTXT(info *RelayInfo) TXTRecordMap {
	txt := make(TXTRecordMap)

	version := info.Version
	if version == "" {
		version = ProtocolVersion
	}
	txt[TXTKeyVersion] = version

	if info.Fingerprint != "" {
		txt[TXTKeyFingerprint] = info.Fingerprint
	}
	if info.MutualTLS {
		txt[TXTKeyMutualTLS] = "1"
	}
	if info.Device != "" {
		txt[TXTKeyDevice] = info.Device
	}

	return txt
}

// DecodeRelayTXT parses TXT records of a relay advertisement.
func DecodeRelayTXT(txt TXTRecordMap) (*RelayInfo, error) {
	info := &RelayInfo{}

	var ok bool
	info.Version, ok = txt[TXTKeyVersion]
	if !ok || info.Version == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyVersion)
	}

	if fp, ok := txt[TXTKeyFingerprint]; ok {
		if !ValidateFingerprint(fp) {
			return nil, fmt.Errorf("%w: invalid fingerprint %q", ErrInvalidTXTRecord, fp)
		}
		info.Fingerprint = strings.ToLower(fp)
	}

	switch txt[TXTKeyMutualTLS] {
	case "", "0":
	case "1":
		info.MutualTLS = true
	default:
		return nil, fmt.Errorf("%w: %s=%q", ErrInvalidTXTRecord, TXTKeyMutualTLS, txt[TXTKeyMutualTLS])
	}

	info.Device = txt[TXTKeyDevice]
	return info, nil
}

// TXTRecordsToStrings converts a TXTRecordMap to a slice of "key=value" strings.
// This format is commonly used by mDNS libraries.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, fmt.Sprintf("%s=%s", k, v))
	}
	return result
}

// StringsToTXTRecords parses a slice of "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		key, value, found := strings.Cut(s, "=")
		if found {
			txt[key] = value
		} else if key != "" {
			// Key without value (boolean flag)
			txt[key] = ""
		}
	}
	return txt
}

// ValidateInstanceName checks if an instance name is valid for mDNS.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInstanceNameTooLong)
	}
	if len(name) > MaxInstanceNameLen {
		return ErrInstanceNameTooLong
	}
	return nil
}

// DefaultInstanceName derives an instance name from the host name.
func DefaultInstanceName(hostname string) string {
	hostname, _, _ = strings.Cut(hostname, ".")
	if hostname == "" {
		hostname = "unknown"
	}
	name := "relay-" + hostname
	if len(name) > MaxInstanceNameLen {
		name = name[:MaxInstanceNameLen]
	}
	return name
}
