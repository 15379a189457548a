// Package render orchestrates rendering tasks: it records a pending task,
// schedules the render in the background, runs the assemble, convert and
// stash pipeline, and performs the single terminal transition. It also
// answers status queries and streams finished artifacts.
package render
