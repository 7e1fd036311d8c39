/*
Package main provides the cogmem daemon entry point.

cmd/cogmemd wires every memory-substrate package (store kernel, the four
long-term memory layers, working memory, the central executive, the
consolidation router, the integrated pipeline, and the retrieval engine)
into one process, plus the ops surface a deployment needs around it:
config loading with hot reload, structured logging, OpenTelemetry traces,
Prometheus metrics, and database migrations.

It is a demo composition root, not a correctness surface: every memory
operation it exposes is implemented and tested at the package level
independent of this binary.

	cogmemd serve                       # start the daemon
	cogmemd serve --config config.yaml  # use an explicit config file
	cogmemd migrate up                  # apply pending migrations
	cogmemd migrate status              # show migration status
	cogmemd version                     # print build info
*/
package main
