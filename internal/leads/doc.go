// Package leads holds the domain model for the realtime lead engine: job
// lifecycle, property records, derived lead identities and outreach status,
// plus the store and runner interfaces the rest of the service composes.
package leads
