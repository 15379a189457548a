// Package memory provides an in-process implementation of
// store.RenderingTaskStore. Records do not survive a restart.
package memory
