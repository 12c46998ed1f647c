package vault

// Version of idvault.
// This variable can be overridden at build time using:
//
//	go build -ldflags "-X github.com/idvault-io/idvault/vault.Version=v1.0.0"
var Version = "dev"
