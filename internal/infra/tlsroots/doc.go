// Package tlsroots builds the trust store for outbound HTTPS.
//
// The pool starts from the system roots and adds operator supplied CA
// certificates from a PEM file or a directory of .pem/.crt/.cer files. The
// HTTP fetcher uses it when target.ca_file is set, for targets behind a
// private CA.
package tlsroots
