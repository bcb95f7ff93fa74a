// Package reasoning defines the contract between the orchestration
// loop and the language model backing it: intent analysis over raw
// user input, step decisions inside the iteration loop, and final
// response synthesis over accumulated tool results. Implementations
// live in subpackages.
package reasoning
