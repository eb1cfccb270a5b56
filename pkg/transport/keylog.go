package transport

import "os"

// KeyLogEnv is the conventional environment variable naming a key log file.
// It is read by the commands and passed in explicitly; this package never
// consults the environment itself.
const KeyLogEnv = "SSLKEYLOGFILE"

// OpenKeyLog opens path for appending TLS key log lines. It reports false
// when path is empty or cannot be opened; a missing sink never fails TLS.
func OpenKeyLog(path string) (*os.File, bool) {
	if path == "" {
		return nil, false
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, false
	}
	return f, true
}
