// Package tui provides the interactive console for flow runs.
//
// The console is used by `weave run --interactive`. It renders a live view
// of every task's state, surfaces questions asked by suspended tasks, and
// collects answers through a text input. Answers are handed back to the
// flow's interaction session, which resumes the suspended task.
//
// Usage:
//
//	program, console := tui.NewConsoleProgram(answerFn, abortFn)
//	go program.Run()
//
//	// Forward flow events
//	program.Send(tui.FlowEventMsg{Event: event})
//
//	// Signal completion
//	program.Send(tui.FlowDoneMsg{State: result.State})
package tui
