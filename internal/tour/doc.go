// Package tour triggers renders on a schedule, visiting a list of stops in
// turn. Each stop becomes a fresh render request on the engine, so a stop that
// fires while a render is running restarts it.
package tour
