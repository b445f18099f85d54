// Package pipeline provides a framework for executing research steps in
// sequence.
//
// The standard run is plan → search → download → cleanup → index →
// summarize → report. Each stage is implemented as a Step that receives
// the shared ResearchState and persists its output as an
// iteration-numbered snapshot before the next stage starts, so an
// aborted run leaves valid artifacts for every completed stage.
//
// Design decision: We use a pipeline pattern instead of direct function
// calls because:
// 1. It allows easy addition/removal of steps without modifying core logic
// 2. It provides consistent error handling and logging across steps
// 3. It supports cancellation via context for long-running runs
//
// Steps depend on small interfaces (PlanGenerator, Seeder, CrawlRunner,
// IndexBuilder, AnswerWriter, Archiver) rather than concrete types,
// which keeps them testable without network, browser, or API access.
package pipeline
