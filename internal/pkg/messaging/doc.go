// Package messaging publishes domain events to a message broker without
// tying callers to Kafka, NATS, NSQ or Google Pub/Sub. Callers depend on
// Publisher; the concrete broker is chosen by driver name at startup.
package messaging
