// =============================================================================
// talktime - Main Entry Point
// =============================================================================
//
// This is the main entry point for the talktime CLI, which turns PBX and
// provider call-detail exports into a per-caller talk-time ledger.
//
// USAGE:
//   talktime run        - Combine, aggregate and reconcile into the ledger
//   talktime combine    - Merge the two raw provider exports only
//   talktime validate   - Check configuration and input headers
//   talktime history    - List recent runs
//   talktime watch      - Re-run whenever a raw export changes
//   talktime version    - Display the application version
//
// ARCHITECTURE:
//   - cmd/           : CLI command definitions (Cobra)
//   - internal/      : Pipeline stages, storage and configuration
//   - pkg/           : Shared file utilities
//
// =============================================================================

package main

import (
	"github.com/asayoyaasa/4PSA-FreePBX-CDR-Generator/cmd"
)

// main hands control to the Cobra CLI.
func main() {
	cmd.Execute()
}
