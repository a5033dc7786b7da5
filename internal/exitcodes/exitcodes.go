package exitcodes

// Exit codes for the dupesweep binaries
// These codes form the operational contract with CI/CD and operators
const (
	Success       = 0 // Successful execution (including "no duplicates found")
	InvalidConfig = 2 // Configuration file invalid or missing
	InvalidRoot   = 3 // Scan root missing or not a directory
	RuntimeError  = 4 // Runtime error during execution
)
