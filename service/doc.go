// Package service runs inbound messages against the in-memory state: one
// processor goroutine, the order pipelines, the commit handoff to
// persistence, and the restore and compaction around them.
//
// It is decoupled from network transports like gRPC and Kafka.
package service
