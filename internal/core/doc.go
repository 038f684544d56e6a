// Package core defines the pipeline's unit of work and how one unit is run.
//
// # Core Types
//
// Task: a declaration of a file transformation. It names where its inputs come
// from (globs, upstream tasks), how an input path is rewritten into output
// paths, and the command template (or native function) that performs it.
//
// Instance: one execution of a Task against one resolved input tuple,
// identified by its primary output path.
//
// Runner: creates output directories, runs the rendered command through the
// shell (optionally inside a cluster wrapper), verifies declared outputs and
// cleans up after failures.
//
// Strategy: decides whether an Instance is up to date. Two strategies exist,
// file modification times and an explicit digest manifest.
package core
