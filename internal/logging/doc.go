// Package logging provides file-based structured logging with rotation for
// Black Vault. Setup always writes JSON log lines to a rotating file
// (~/.blackvault/logs/blackvault.log unless configured otherwise) for
// debugging and troubleshooting.
//
// When WriteToStderr is set, which is the default, the same lines are also
// written to stderr.
package logging
