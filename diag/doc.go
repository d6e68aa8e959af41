// Package diag renders read-only diagnostics over finished extraction
// results: PNG plots of the spectrum, trace width and fit residuals, and a
// self-contained HTML report. Nothing here feeds back into the numeric
// pipeline.
package diag
