package discovery

import (
	"fmt"
	"sort"
	"strings"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeTXT creates the TXT records for info.
func EncodeTXT(info *ServiceInfo) TXTRecordMap {
	txt := TXTRecordMap{TXTKeyVersion: ProtocolVersion}
	if info.TLS {
		txt[TXTKeyTLS] = "1"
	} else {
		txt[TXTKeyTLS] = "0"
	}
	return txt
}

// DecodeTXT parses TXT records. The tls key is required; the version
// defaults to ProtocolVersion when absent.
func DecodeTXT(txt TXTRecordMap) (*ServiceInfo, string, error) {
	v, ok := txt[TXTKeyTLS]
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyTLS)
	}

	info := &ServiceInfo{}
	switch strings.ToLower(v) {
	case "1", "true", "yes":
		info.TLS = true
	case "0", "false", "no":
		info.TLS = false
	default:
		return nil, "", fmt.Errorf("%w: %s=%q", ErrInvalidTXT, TXTKeyTLS, v)
	}

	version := txt[TXTKeyVersion]
	if version == "" {
		version = ProtocolVersion
	}
	return info, version, nil
}

// TXTRecordsToStrings converts TXT records to "key=value" strings, sorted
// by key.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, k+"="+v)
	}
	sort.Strings(result)
	return result
}

// StringsToTXTRecords parses "key=value" strings. Entries without '=' are
// boolean attributes with an empty value.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap, len(strs))
	for _, s := range strs {
		k, v, _ := strings.Cut(s, "=")
		if k == "" {
			continue
		}
		txt[k] = v
	}
	return txt
}
