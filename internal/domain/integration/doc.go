// Package integration contains the domain model of the integration
// synchronization engine: the Integration aggregate and its lifecycle,
// the immutable SyncRun ledger, webhook registrations, field mapping and
// transformation pipelines, conflict detection and resolution, health
// reporting, and the ports (ProviderAdapter, CredentialStore) through
// which the engine reaches external systems.
//
// Concrete adapters live in the infrastructure layer; application
// services orchestrating sync workflows live in the application layer.
package integration
