// Package config provides torbridge's settings: where the Tor client comes
// from, how the shared engine is sized, and where the handle journal lives.
//
// Settings are read from a YAML file (.torbridge in the current or home
// directory, or an explicit path). The separate client configuration file
// handed to Init is only echoed for diagnostics by EchoClientConfig.
package config
