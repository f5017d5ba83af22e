// Package probe answers one question about a network address: did it reply
// to a single echo request within the timeout?
//
// Two implementations are provided:
//   - PingProber runs the system ping binary and kills it at twice the
//     timeout if it has not exited on its own
//   - ICMPProber sends the echo request itself using golang.org/x/net/icmp
//
// Probers never return errors. Every failure cause (host down, name not
// resolvable, binary missing, permission denied, timeout) is reported as
// false and logged at debug level.
package probe
