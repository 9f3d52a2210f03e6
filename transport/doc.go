// Package transport provides reference goMFA.Transport implementations.
//
// [Outbox] captures messages in memory for development and tests.
// [Webhook] POSTs each message as JSON to an HTTP endpoint, for relaying to
// an email or SMS provider.
package transport
