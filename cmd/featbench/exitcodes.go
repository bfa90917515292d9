package main

// Exit codes
const (
	ExitSuccess     = 0 // Success
	ExitError       = 1 // General error (invalid arguments, runtime failure)
	ExitConfigError = 2 // Configuration error (bad config file, invalid values)
	ExitDataError   = 3 // Data error (unreadable or empty corpus, bad feature file)
	ExitMismatch    = 4 // Sequential and parallel strategies disagreed
	ExitNotFound    = 5 // Requested run not found in history
)
