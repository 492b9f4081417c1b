// Package descriptor resolves, caches, mutates and persists project
// descriptors: XML files whose ItemGroup elements enumerate the source files
// that belong to a build project.
//
// A Resolver walks ancestor directories to find the descriptor governing a
// file and loads it through a Cache, collapsing concurrent loads of the same
// path into one parse. Mutations run against the parsed Tree in memory and a
// Persister writes them back, rolling the tree back when the write fails.
package descriptor
