// Package api exposes rendering tasks over HTTP. It serves a REST surface
// under /api/renders and the single-endpoint /download-book API used by
// book collection clients, translating both into render service calls.
package api
