package ui

// Unicode symbols for status indicators.
const (
	SymbolSuccess    = "✓" // Completed
	SymbolFail       = "✗" // Failed
	SymbolPending    = "○" // Not started / unknown
	SymbolProgress   = "◐" // Running
	SymbolComplete   = "●"
	SymbolStopped    = "■" // Stopped early
	SymbolCheckpoint = "◆" // Adapter weights saved
	SymbolBest       = "★"
)
