package discovery

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeBorderAgentTXT creates TXT records for a border agent.
func EncodeBorderAgentTXT(info *BorderAgentInfo) TXTRecordMap {
	txt := make(TXTRecordMap)

	txt[TXTKeyRecordVersion] = RecordVersion
	txt[TXTKeyStateBitmap] = fmt.Sprintf("%08x", info.State.Uint32())
	if info.Version != "" {
		txt[TXTKeyVersion] = info.Version
	}

	if info.Commissioned {
		txt[TXTKeyNetworkName] = info.NetworkName
		txt[TXTKeyExtendedPanID] = hex.EncodeToString(info.ExtendedPanID)
		txt[TXTKeyActiveTimestamp] = fmt.Sprintf("%016x", info.ActiveTimestamp)
	}

	return txt
}

// DecodeBorderAgentTXT parses TXT records of a border agent.
func DecodeBorderAgentTXT(txt TXTRecordMap) (*BorderAgentInfo, error) {
	info := &BorderAgentInfo{}

	rv, ok := txt[TXTKeyRecordVersion]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyRecordVersion)
	}
	if rv != RecordVersion {
		return nil, fmt.Errorf("%w: record version %q", ErrInvalidTXTRecord, rv)
	}

	sb, ok := txt[TXTKeyStateBitmap]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyStateBitmap)
	}
	v, err := strconv.ParseUint(sb, 16, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: state bitmap %q", ErrInvalidTXTRecord, sb)
	}
	info.State = ParseStateBitmap(uint32(v))
	info.Version = txt[TXTKeyVersion]

	nn, hasName := txt[TXTKeyNetworkName]
	if !hasName {
		return info, nil
	}
	info.Commissioned = true
	info.NetworkName = nn

	if xp, ok := txt[TXTKeyExtendedPanID]; ok {
		if info.ExtendedPanID, err = hex.DecodeString(xp); err != nil {
			return nil, fmt.Errorf("%w: extended PAN ID %q", ErrInvalidTXTRecord, xp)
		}
	}
	if at, ok := txt[TXTKeyActiveTimestamp]; ok {
		if info.ActiveTimestamp, err = strconv.ParseUint(at, 16, 64); err != nil {
			return nil, fmt.Errorf("%w: active timestamp %q", ErrInvalidTXTRecord, at)
		}
	}

	return info, nil
}

// TXTRecordsToStrings converts a TXTRecordMap to a slice of "key=value"
// strings, sorted by key.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, k+"="+v)
	}
	sort.Strings(result)
	return result
}

// StringsToTXTRecords parses a slice of "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		k, v, found := strings.Cut(s, "=")
		if !found && k == "" {
			continue
		}
		// Key without value (boolean flag)
		txt[k] = v
	}
	return txt
}

// ValidateInstanceName checks if an instance name is valid for mDNS.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty instance name", ErrMissingRequired)
	}
	if len(name) > MaxInstanceNameLen {
		return fmt.Errorf("%w: instance name longer than %d", ErrInvalidTXTRecord, MaxInstanceNameLen)
	}
	return nil
}

// InstanceName builds the instance name from the network name and a node
// suffix, truncating the network name to fit a DNS label.
func InstanceName(networkName, suffix string) string {
	if networkName == "" {
		networkName = "Border Agent"
	}
	name := networkName + " " + suffix
	if len(name) > MaxInstanceNameLen {
		keep := MaxInstanceNameLen - len(suffix) - 1
		if keep < 0 {
			return name[:MaxInstanceNameLen]
		}
		name = networkName[:keep] + " " + suffix
	}
	return name
}
