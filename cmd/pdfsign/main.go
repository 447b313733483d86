// Command pdfsign signs PDF documents with detached signatures and verifies
// the signatures embedded in them.
//
// Usage:
//
//	pdfsign <command> [options] <args>
//
// Commands:
//
//	sign      Sign a PDF document held in the configured store
//	verify    Verify the digital signature(s) of a PDF file
//	pages     Show the page count, page sizes and version of a PDF file
//	keystore  List the aliases of a key store
//	version   Show version information
//
// Examples:
//
//	# Sign a document with a visible widget on the last page
//	pdfsign sign --source docs/contract.pdf --private-key keys/signer.p12 \
//	    --visibility visible --position topright --page -1
//
//	# Verify with JSON output
//	pdfsign verify --json document.pdf
package main

import (
	"os"

	"github.com/georgepadayatti/pdfsign/cli"
)

// These variables are set at build time using ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)" ./cmd/pdfsign
var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	cli.Version = version
	cli.BuildTime = buildTime

	cli.Run(os.Args)
}
