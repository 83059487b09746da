// Package sites resolves per-site input and output locations, loads the
// batch site list, discovers site directories under the dataset root and
// verifies what a batch actually left on disk.
package sites
