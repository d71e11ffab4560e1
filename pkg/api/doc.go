/*
Package api implements the broker's HTTP surface: JSON routes for
identity and event management, and the SSE subscriber route, fronted by
chi routing, go-chi/cors, and JWT/Basic auth.

# Architecture

	┌──────────────────── CLIENT ─────────────────────┐
	│  Browser / service, Bearer or Basic auth         │
	└─────────────────────┬─────────────────────────────┘
	                      │ HTTP/JSON, SSE
	┌─────────────────────▼──── BROKER PROCESS ────────┐
	│  ┌──────────────────────────────────────────┐    │
	│  │        chi router (pkg/api)               │    │
	│  │  - CORS, metrics, auth middleware          │    │
	│  │  - request/response JSON marshaling        │    │
	│  └──────────────────┬─────────────────────────┘    │
	│                     │                                │
	│  ┌──────────────────▼─────────────────────────┐    │
	│  │  identity / eventlog / projection / session │    │
	│  │  (pure business logic, no HTTP types)       │    │
	│  └──────────────────────────────────────────────┘    │
	└────────────────────────────────────────────────────┘

# Auth

Required routes expect `Authorization: Bearer <jwt>` or
`Authorization: Basic <base64(username:password)>`. A missing header
yields 400 (a framework-level rejection, distinct from an authentication
failure); a present-but-invalid header yields 401. The one exception is
`GET /events/{tenant_id}`: for any well-formed tenant id (a malformed one
yields 400) it returns a 200 stream, emitting a
single `internal_status`/denied frame in-band when the caller is
unauthenticated, since an SSE response has already committed its status
line by the time the stream's content is known.

# Error translation

Lower layers (pkg/identity, pkg/eventlog, pkg/projection) never write
HTTP bodies themselves; this package is the only place a sentinel error
becomes a status code and JSON body.

# See Also

  - pkg/session - the SSE subscriber loop this package mounts
  - pkg/metrics - /health, /ready, /healthz, /metrics handlers
*/
package api
