// Package pool bounds the number of concurrent outbound download connections
// shared by every builder agent client.
//
// A released connection becomes reusable, and its slot available, only on the
// scheduler tick following Release, never within the Release call itself.
package pool
