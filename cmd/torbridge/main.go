// Package main provides the torbridge command line tool.
//
// torbridge drives the same session the C library exposes, which makes it
// handy for checking Tor connectivity and for reading the handle journal.
//
// Usage:
//
//	torbridge dial example.onion:80 < request.txt
//	torbridge fetch https://check.torproject.org/
//	torbridge journal
//
// See --help for all available options.
package main

func main() {
	Execute()
}
