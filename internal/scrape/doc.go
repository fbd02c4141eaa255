// Package scrape defines the request, record and collaborator types shared by the extraction pipeline.
//
// A Record is either an error record (Error set, Content nil) or a content record (Content set, Error empty).
// Records leave the orchestrator immutable; stores and sinks receive copies made with Record.Clone.
package scrape
