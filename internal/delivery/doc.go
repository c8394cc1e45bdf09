// Package delivery talks to the remote backend.
//
// HTTPClient uploads captures as multipart form posts, sends heartbeats, and
// posts intrusion alert metadata. Every request carries the pre-shared
// X-API-Key header. Only HTTP 200 and 201 count as success; any other status
// is a rejection and a failure below HTTP is a transport error. Probe answers
// the cheaper question of whether an attempt is worth making at all.
package delivery
