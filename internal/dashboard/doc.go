// Package dashboard implements the full-screen `forge watch` view: a
// Bubble Tea program that polls the query service and renders progress,
// loss curves and checkpoints for the running or selected session.
//
// Layout, top to bottom:
//
//	header      run name, status, refresh age
//	progress    iteration bar and ETA
//	metrics     latest losses, learning rate, throughput, memory
//	graph       braille training loss curve, validation sparkline
//	checkpoints best saved checkpoints (toggle with c)
//	footer      key hints
package dashboard
