// Package main implements the shadowsim CLI tool.
//
// shadowsim drives the critical path profiler's shadow memory from recorded
// or synthetic access traces, so cache, compression and garbage collection
// settings can be compared without instrumenting a program:
//
//	shadowsim synth --depth 4 --trip 8 -o loops.jsonl
//	shadowsim replay loops.jsonl --cache-lines 1024 --compress
//	shadowsim replay loops.jsonl --json --metrics-addr :9108 --hold
//	shadowsim version
package main

func main() {
	execute()
}
