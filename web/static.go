// Package web holds the browser front end served under /static/.
package web

import "embed"

// StaticFiles is the embedded static/ tree.
//
//go:embed static/*
var StaticFiles embed.FS
