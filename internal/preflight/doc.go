// Package preflight provides readiness checks for the paths and catalog
// digidup depends on.
//
// These checks run in two contexts:
//   - resolve and verify call ForResolve / ForVerify before opening the
//     catalog. If any check fails the command stops before touching a file.
//   - The "digidup preflight" command uses RunAll to display every check.
package preflight
