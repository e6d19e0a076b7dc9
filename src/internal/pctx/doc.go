// Package pctx builds contexts for vizier.
//
// Every context in vizier carries a logger.  Binaries start from Background; long-running
// goroutines (branch runners, pool workers) are started with Child(parent, "name", ...), which
// names the logger and attaches fields, so a line logged deep inside a task reads like
// "engine.runner.task" with the project and branch attached.
//
// Code that is not yet plumbed for a context may use TODO.  New code should not.
package pctx
