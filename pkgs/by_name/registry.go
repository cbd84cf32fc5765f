// Package byname links every generated package module into the binary.
// Entries are maintained by lpkg workflow scaffold-package.
package byname
