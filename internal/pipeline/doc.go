// Package pipeline declares the job types the service knows how to run.
//
// Each Definition binds a job type to the Stage its outputs are cached
// under, the JSON schemas its input and output must satisfy, and the prompt
// template used to ask the generator for output.
package pipeline
