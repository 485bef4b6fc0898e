// Package challenge provides the challenge catalog.
//
// The challenge package defines the Spec type describing a single shell
// challenge (setup commands, expected output, evaluation mode) and a
// Registry that loads a read-only catalog of specs from a YAML file.
// The sandbox core only ever reads from the registry; authoring and
// persistence of challenges live outside this service.
package challenge
