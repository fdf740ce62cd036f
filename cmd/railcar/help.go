// ABOUTME: Help display for the railcar CLI with grouped verbs, flags, examples, and environment status.
// ABOUTME: Provides printHelp for usage output and envStatus for API key detection.
package main

import (
	"fmt"
	"io"
	"os"
)

const railcarASCII = `
               ____________________________
          ____|____________________________|____
         |    |  []   []   []   []   []    |    |
     ----o    |____________________________|    o----
         |____|____________________________|____|
                 (_)  (_)          (_)  (_)
       ==============================================
`

// printHelp writes a formatted help message to w: usage patterns, grouped
// flags, examples, environment status, and a docs link.
func printHelp(w io.Writer, ver string) {
	fmt.Fprint(w, railcarASCII)
	fmt.Fprintf(w, "railcar %s, a railway-style workflow runner\n", ver)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  railcar run [flags] <workflow>      Execute a dispatchable workflow")
	fmt.Fprintln(w, "  railcar list                        List workflows in the manifest")
	fmt.Fprintln(w, "  railcar validate                    Validate the manifest without executing")
	fmt.Fprintln(w, "  railcar runs [run-id]               Show recorded run history")
	fmt.Fprintln(w, "  railcar serve                       Serve workflows over HTTP")
	fmt.Fprintln(w, "  railcar bridge <stories-dir>        File tracker issues from BMAD stories")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Run Flags:")
	fmt.Fprintln(w, "  -manifest <path>      Workflow manifest (default: railcar.yaml)")
	fmt.Fprintln(w, "  -set key=value        Seed an initial input (repeatable)")
	fmt.Fprintln(w, "  -tui                  Watch the run in a full-screen terminal UI")
	fmt.Fprintln(w, "  -verbose              Print engine events to stderr")
	fmt.Fprintln(w, "  -history <path>       Run history database (default: data dir)")
	fmt.Fprintln(w, "  -no-history           Skip recording this run")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Serve Flags:")
	fmt.Fprintln(w, "  -addr <host:port>     HTTP listen address (default: 127.0.0.1:2389)")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Bridge Flags:")
	fmt.Fprintln(w, "  -tracker <bin>        Tracker CLI binary (default: tracker)")
	fmt.Fprintln(w, "  -dir <path>           Working directory for tracker calls")
	fmt.Fprintln(w, "  -dry-run              Parse and report stories without filing issues")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Other:")
	fmt.Fprintln(w, "  version               Print version and exit")
	fmt.Fprintln(w, "  help                  Show this help")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Examples:")
	fmt.Fprintln(w, "  railcar run nightly_release")
	fmt.Fprintln(w, "  railcar run -tui -set version=1.4.2 release")
	fmt.Fprintln(w, "  railcar validate -manifest ci/railcar.yaml")
	fmt.Fprintln(w, "  railcar runs -limit 10")
	fmt.Fprintln(w, "  railcar serve -addr 127.0.0.1:8080")
	fmt.Fprintln(w, "  railcar bridge -dry-run docs/stories")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Environment:")
	fmt.Fprintf(w, "  OPENAI_API_KEY        %s\n", envStatus("OPENAI_API_KEY"))
	fmt.Fprintf(w, "  ANTHROPIC_API_KEY     %s\n", envStatus("ANTHROPIC_API_KEY"))
	fmt.Fprintf(w, "  GEMINI_API_KEY        %s\n", envStatus("GEMINI_API_KEY"))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  An API key is needed only by workflows with llm_complete steps.")
	fmt.Fprintln(w, "  OPENAI_BASE_URL routes OpenAI calls to a compatible endpoint.")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Docs: https://github.com/2389-research/railcar")
}

// envStatus returns "[set]" if the named environment variable is non-empty,
// or "[not set]" otherwise.
func envStatus(key string) string {
	if os.Getenv(key) != "" {
		return "[set]"
	}
	return "[not set]"
}
