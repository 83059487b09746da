// Package preflight provides readiness checks for the filesystem paths and
// converter binaries a batch run depends on.
//
// These checks run in two contexts:
//   - The "abide2nidm preflight" command prints every result.
//   - The "run" command calls RunAll first and refuses to start when a
//     required input is missing, so a doomed batch never takes the lock.
package preflight
